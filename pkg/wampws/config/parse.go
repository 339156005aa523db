package config

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// ConfigFileExtensions are the file suffixes picked up from directories.
var ConfigFileExtensions = []string{".hcl", ".wamp"}

// ParseConfigFiles parses every source into an HCL body. A source is a file
// or directory path, a []string of paths, raw []byte content or an embed.FS.
// Directories are walked recursively for ConfigFileExtensions.
func ParseConfigFiles(sources ...any) ([]hcl.Body, hcl.Diagnostics) {
	parser := hclparse.NewParser()
	var diags hcl.Diagnostics
	bodies := make([]hcl.Body, 0)

	for _, source := range sources {
		switch v := source.(type) {
		case string:
			newBodies, newDiags := parsePath(parser, v)
			diags = diags.Extend(newDiags)
			bodies = append(bodies, newBodies...)

		case []string:
			for _, path := range v {
				newBodies, newDiags := parsePath(parser, path)
				diags = diags.Extend(newDiags)
				bodies = append(bodies, newBodies...)
			}

		case []byte:
			filename := fmt.Sprintf("<bytes@%p>", v)
			file, parseDiags := parser.ParseHCL(v, filename)
			diags = diags.Extend(parseDiags)
			if file != nil {
				bodies = append(bodies, file.Body)
			}

		case embed.FS:
			newBodies, newDiags := parseFS(parser, v)
			diags = diags.Extend(newDiags)
			bodies = append(bodies, newBodies...)

		default:
			diags = diags.Append(&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Invalid source type",
				Detail:   fmt.Sprintf("Invalid source type: %T", v),
			})
		}
	}

	return bodies, diags
}

func parsePath(parser *hclparse.Parser, path string) ([]hcl.Body, hcl.Diagnostics) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, hcl.Diagnostics{&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Failed to stat file",
			Detail:   fmt.Sprintf("Error statting %s: %s", path, err),
		}}
	}

	if info.IsDir() {
		return parseDirectory(parser, path)
	}

	file, diags := parser.ParseHCLFile(path)
	if file == nil {
		return nil, diags
	}
	return []hcl.Body{file.Body}, diags
}

func isConfigFile(path string) bool {
	for _, ext := range ConfigFileExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

func parseDirectory(parser *hclparse.Parser, dir string) ([]hcl.Body, hcl.Diagnostics) {
	var diags hcl.Diagnostics
	bodies := make([]hcl.Body, 0)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			diags = diags.Append(&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Failed to access file or directory",
				Detail:   fmt.Sprintf("Error accessing %s: %s", path, err),
			})
			return nil
		}
		if !d.IsDir() && isConfigFile(path) {
			file, parseDiags := parser.ParseHCLFile(path)
			diags = diags.Extend(parseDiags)
			if file != nil {
				bodies = append(bodies, file.Body)
			}
		}
		return nil
	})

	if err != nil {
		diags = diags.Append(&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Failed to walk directory",
			Detail:   fmt.Sprintf("Error walking directory %s: %s", dir, err),
		})
	}

	return bodies, diags
}

func parseFS(parser *hclparse.Parser, embedFS embed.FS) ([]hcl.Body, hcl.Diagnostics) {
	var diags hcl.Diagnostics
	bodies := make([]hcl.Body, 0)

	err := fs.WalkDir(embedFS, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			diags = diags.Append(&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Failed to access file or directory",
				Detail:   fmt.Sprintf("Error accessing %s: %s", path, err),
			})
			return nil
		}
		if d.IsDir() || !isConfigFile(path) {
			return nil
		}

		content, err := fs.ReadFile(embedFS, path)
		if err != nil {
			diags = diags.Append(&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Failed to read file",
				Detail:   fmt.Sprintf("Error reading %s: %s", path, err),
			})
			return nil
		}

		file, parseDiags := parser.ParseHCL(content, path)
		diags = diags.Extend(parseDiags)
		if file != nil {
			bodies = append(bodies, file.Body)
		}
		return nil
	})

	if err != nil {
		diags = diags.Append(&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Failed to walk embedded files",
			Detail:   err.Error(),
		})
	}

	return bodies, diags
}
