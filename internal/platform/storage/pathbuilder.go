package storage

import (
	"fmt"
	"strings"
)

// StoreLogoPath returns the object key for a store logo upload.
func StoreLogoPath(storeID, uploadID, contentType string) (string, error) {
	storeID, err := validateSegment("storeID", storeID)
	if err != nil {
		return "", err
	}
	uploadID, err = validateSegment("uploadID", uploadID)
	if err != nil {
		return "", err
	}
	ext, err := ExtensionFor(contentType)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("stores/%s/logo/%s.%s", storeID, uploadID, ext), nil
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") || strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	return value, nil
}
