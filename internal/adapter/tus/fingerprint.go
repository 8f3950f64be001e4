package tus

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/vertextoedge/filetransfer/internal/domain"
)

// Fingerprint identifies a local file for a given endpoint. Two uploads of
// the same unmodified file to the same endpoint share a fingerprint.
func Fingerprint(file *domain.FileInfo, endpoint string) string {
	raw := strings.Join([]string{
		"node-file",
		file.URI,
		fmt.Sprint(file.Size),
		fmt.Sprint(file.ModTime.UnixMilli()),
		endpoint,
	}, "-")
	sum := blake2b.Sum256([]byte(raw))
	return fmt.Sprintf("%x", sum[:])
}
