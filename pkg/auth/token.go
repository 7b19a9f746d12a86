// Package auth collects the static backend credentials interactively.
package auth

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Credentials are the static backend credentials every request carries.
type Credentials struct {
	APIKey    string
	CompanyID string
}

// ReadCredentials prompts for the API key and company id on r, one per
// line. Both are required.
func ReadCredentials(r io.Reader) (*Credentials, error) {
	scanner := bufio.NewScanner(r)

	fmt.Println("Paste your API key from app.echoedhq.com/settings:")
	fmt.Print("> ")
	apiKey, err := readLine(scanner)
	if err != nil {
		return nil, err
	}
	if apiKey == "" {
		return nil, errors.New("API key cannot be empty")
	}

	fmt.Println("Enter your company id:")
	fmt.Print("> ")
	companyID, err := readLine(scanner)
	if err != nil {
		return nil, err
	}
	if companyID == "" {
		return nil, errors.New("company id cannot be empty")
	}

	return &Credentials{APIKey: apiKey, CompanyID: companyID}, nil
}

func readLine(scanner *bufio.Scanner) (string, error) {
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("reading input: %w", err)
		}
		return "", errors.New("no input received")
	}
	return strings.TrimSpace(scanner.Text()), nil
}
