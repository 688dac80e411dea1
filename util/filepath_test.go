package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStemAndExt(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		wantStem string
		wantExt  string
	}{
		{
			name:     "simple extension",
			path:     "/path/to/backup.zip",
			wantStem: "backup",
			wantExt:  ".zip",
		},
		{
			name:     "extended extension",
			path:     "/path/to/backup.tar.gz",
			wantStem: "backup",
			wantExt:  ".tar.gz",
		},
		{
			name:     "windows path",
			path:     "C:\\Users\\backup.zip",
			wantStem: "backup",
			wantExt:  ".zip",
		},
		{
			name:     "no extension",
			path:     "/path/to/backup",
			wantStem: "backup",
			wantExt:  "",
		},
		{
			name:     "long suffix is not an extension",
			path:     "/path/to/photos.holiday",
			wantStem: "photos.holiday",
			wantExt:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotStem, gotExt := StemAndExt(tt.path)
			assert.Equalf(t, tt.wantStem, gotStem, "StemAndExt() gotStem = %v, want %v", gotStem, tt.wantStem)
			assert.Equalf(t, tt.wantExt, gotExt, "StemAndExt() gotExt = %v, want %v", gotExt, tt.wantExt)
		})
	}
}
