package drop

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// writeFileOfSize writes size filler bytes to dir/name.
func writeFileOfSize(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, bytes.Repeat([]byte{'a'}, size), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// testManifest returns a structurally valid manifest for index.
func testManifest(index string) Manifest {
	return Manifest{
		Name:                 "Asset #" + index,
		Symbol:               "TEST",
		Image:                "image.png",
		SellerFeeBasisPoints: 500,
		Properties: ManifestProperties{
			Files: []ManifestFile{{URI: "image.png", Type: "image/png"}},
			Creators: []ManifestCreator{
				{Address: "8tRrZrBdNMfEfhmo8WMB11damBzLUGE14fBeCWAnDf3q", Share: 100},
			},
		},
	}
}

// writeManifest writes m as dir/index.json.
func writeManifest(t *testing.T, dir, index string, m Manifest) {
	t.Helper()
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, index+".json"), data, 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
}

// writeTestAsset writes a media file and a valid manifest for index.
func writeTestAsset(t *testing.T, dir, index string, mediaSize int) {
	t.Helper()
	writeFileOfSize(t, dir, index+".png", mediaSize)
	writeManifest(t, dir, index, testManifest(index))
}
