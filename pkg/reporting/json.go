package reporting

import (
	"encoding/json"
	"os"
)

// FormatJSON renders v as indented JSON
func FormatJSON(v interface{}) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

// WriteJSON writes v as indented JSON to path, creating the directory
func WriteJSON(v interface{}, path string) error {
	data, err := FormatJSON(v)
	if err != nil {
		return err
	}

	if err := EnsureDirectoryExists(path); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
