package domain

import (
	"fmt"
	"strings"
)

// EditRequest is sent to the image-editing model. Payload is the text-safe
// (base64) image content without any data URL header.
type EditRequest struct {
	Payload     string
	MIMEType    string
	Instruction string
}

// EditResult is what the model returned for a single request. EncodedImage is
// a data URL; Narrative is optional commentary from the model.
type EditResult struct {
	EncodedImage string
	Narrative    string
}

// PromptTemplate is a named preset instruction.
type PromptTemplate struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Prompt string `json:"prompt"`
}

// Validate applies the client-side checks every editor runs before any
// network call.
func (r EditRequest) Validate() error {
	if strings.TrimSpace(r.Payload) == "" {
		return fmt.Errorf("%w: image payload is empty", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.Instruction) == "" {
		return fmt.Errorf("%w: instruction is empty", ErrInvalidRequest)
	}
	return nil
}
