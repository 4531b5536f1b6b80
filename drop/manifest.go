package drop

import (
	"encoding/json"
	"fmt"
	"os"
)

// ManifestCreator is one royalty recipient declared by a manifest.
type ManifestCreator struct {
	Address string `json:"address"`
	Share   int    `json:"share"`
}

// ManifestFile is one entry of properties.files.
type ManifestFile struct {
	URI  string `json:"uri"`
	Type string `json:"type"`
}

// ManifestProperties holds the file listing and creator split of a manifest.
type ManifestProperties struct {
	Files    []ManifestFile    `json:"files"`
	Creators []ManifestCreator `json:"creators"`
	Category string            `json:"category,omitempty"`
}

// Manifest is the JSON metadata document paired with each media file. The
// stock document points image/animation_url/files at placeholder filenames;
// the uploader rewrites them to real content URIs before the manifest itself
// is uploaded.
type Manifest struct {
	Name                 string             `json:"name"`
	Symbol               string             `json:"symbol"`
	Description          string             `json:"description,omitempty"`
	Image                string             `json:"image"`
	AnimationURL         string             `json:"animation_url,omitempty"`
	ExternalURL          string             `json:"external_url,omitempty"`
	SellerFeeBasisPoints int                `json:"seller_fee_basis_points"`
	Attributes           json.RawMessage    `json:"attributes,omitempty"`
	Properties           ManifestProperties `json:"properties"`
}

// LoadManifest reads and parses the manifest at path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return &m, nil
}

// Validate checks the structural constraints every manifest must satisfy
// before any network activity happens.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("manifest name is empty")
	}
	if m.Image == "" {
		return fmt.Errorf("manifest %q: image is empty", m.Name)
	}
	if m.SellerFeeBasisPoints < 0 || m.SellerFeeBasisPoints > 10_000 {
		return fmt.Errorf("manifest %q: seller_fee_basis_points %d out of range [0,10000]",
			m.Name, m.SellerFeeBasisPoints)
	}
	if len(m.Properties.Creators) == 0 {
		return fmt.Errorf("manifest %q: no creators declared", m.Name)
	}
	total := 0
	for _, c := range m.Properties.Creators {
		if c.Address == "" {
			return fmt.Errorf("manifest %q: creator with empty address", m.Name)
		}
		total += c.Share
	}
	if total != 100 {
		return fmt.Errorf("manifest %q: creator shares sum to %d, want 100", m.Name, total)
	}
	return nil
}

// RewriteMediaURI points image (and animation_url when present) at the
// uploaded media's content URI and replaces the placeholder file listing.
func (m *Manifest) RewriteMediaURI(uri, contentType string) {
	m.Image = uri
	files := []ManifestFile{{URI: uri, Type: contentType}}
	if m.AnimationURL != "" {
		m.AnimationURL = uri
	}
	m.Properties.Files = files
}

// Encode marshals the manifest for upload.
func (m *Manifest) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode manifest %q: %w", m.Name, err)
	}
	return data, nil
}
