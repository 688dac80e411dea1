package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/lightclove/archivator/util"
)

// parseS3URI splits "s3://bucket/key" into its bucket and key parts.
func parseS3URI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf(`not an S3 URI: "%s"`, uri)
	}

	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf(`S3 URI "%s" must be in format s3://bucket/key`, uri)
	}

	return bucket, key, nil
}

func isS3URI(uri string) bool {
	return strings.HasPrefix(uri, "s3://")
}

func newS3Client(ctx context.Context) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config error: %w", err)
	}

	return s3.NewFromConfig(cfg), nil
}

// uploadArchive uploads the finished archive to the given s3://bucket/key URI using
// multipart upload.
func uploadArchive(ctx context.Context, name, uri string) error {
	bucket, key, err := parseS3URI(uri)
	if err != nil {
		return err
	}

	client, err := newS3Client(ctx)
	if err != nil {
		return err
	}

	f, err := os.Open(name)
	if err != nil {
		return fmt.Errorf("open archive error: %w", err)
	}
	defer f.Close()

	if _, err = manager.NewUploader(client).Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   f,
	}); err != nil {
		return fmt.Errorf(`upload to "%s" error: %w`, uri, err)
	}

	return nil
}

// newLocalFile creates the local download target for key under dir. An existing file
// with the same name is never truncated; a numeric suffix is used instead.
func newLocalFile(dir, key string) (*os.File, error) {
	stem, ext := util.StemAndExt(filepath.Base(key))
	return util.OpenExclFile(dir, stem, ext, 0666)
}

// downloadArchive downloads an archive from the given s3://bucket/key URI into dir and
// returns the local file name. The local file is removed on failure.
func downloadArchive(ctx context.Context, uri, dir string) (string, error) {
	bucket, key, err := parseS3URI(uri)
	if err != nil {
		return "", err
	}

	client, err := newS3Client(ctx)
	if err != nil {
		return "", err
	}

	f, err := newLocalFile(dir, key)
	if err != nil {
		return "", fmt.Errorf("create local file error: %w", err)
	}
	name := f.Name()

	_, err = manager.NewDownloader(client).Download(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err2 := f.Close(); err == nil {
		err = err2
	}
	if err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf(`download from "%s" error: %w`, uri, err)
	}

	return name, nil
}
