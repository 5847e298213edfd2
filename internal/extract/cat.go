package extract

import (
	"fmt"

	"github.com/lu4p/cat"
)

// extractWithCat handles ODT and RTF.
func extractWithCat(content []byte) (string, error) {
	text, err := cat.FromBytes(content)
	if err != nil {
		return "", fmt.Errorf("could not parse document: %w", err)
	}
	return text, nil
}
