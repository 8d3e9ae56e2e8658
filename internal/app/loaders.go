package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vk/benchgrid/internal/campaign"
	"github.com/vk/benchgrid/internal/fsutil"
	"github.com/vk/benchgrid/internal/hcl"
	"github.com/vk/benchgrid/internal/yamlconf"
)

// loaderFor picks the campaign loader by file extension. A directory is read
// as HCL when it holds any .hcl file and as YAML otherwise.
func loaderFor(path string) (campaign.Loader, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("error accessing campaign path %s: %w", path, err)
	}
	if !info.IsDir() {
		switch filepath.Ext(path) {
		case ".hcl":
			return hcl.NewLoader(), nil
		case ".yaml", ".yml":
			return yamlconf.NewLoader(), nil
		default:
			return nil, fmt.Errorf("unsupported campaign file %s: expected .hcl, .yaml or .yml", path)
		}
	}

	hclFiles, err := fsutil.FindFilesByExtension(path, ".hcl")
	if err != nil {
		return nil, err
	}
	if len(hclFiles) > 0 {
		return hcl.NewLoader(), nil
	}
	return yamlconf.NewLoader(), nil
}
