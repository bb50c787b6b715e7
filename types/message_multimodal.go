package types

import "strings"

// IsMultimodal reports whether the message uses the Parts representation
// rather than the legacy plain-text Content field.
func (m Message) IsMultimodal() bool {
	return len(m.Parts) > 0
}

// HasMediaContent reports whether the message carries at least one
// image/audio/video part. A text-only multimodal message (Parts set but
// all text) returns false, same as a legacy message.
func (m Message) HasMediaContent() bool {
	for _, part := range m.Parts {
		if isMediaPartType(part.Type) {
			return true
		}
	}
	return false
}

func isMediaPartType(t string) bool {
	switch t {
	case ContentTypeImage, ContentTypeAudio, ContentTypeVideo, ContentTypeDocument:
		return true
	default:
		return false
	}
}

// GetContent returns the message's text, whether it's stored as a plain
// Content string (legacy) or assembled from the text parts of a
// multimodal message.
func (m Message) GetContent() string {
	if !m.IsMultimodal() {
		return m.Content
	}
	var b strings.Builder
	for _, part := range m.Parts {
		if part.Type == ContentTypeText && part.Text != nil {
			b.WriteString(*part.Text)
		}
	}
	return b.String()
}

// SetTextContent replaces the message with legacy plain-text content,
// discarding any multimodal parts.
func (m *Message) SetTextContent(text string) {
	m.Content = text
	m.Parts = nil
}

// SetMultimodalContent replaces the message's content with the given
// parts, clearing the legacy Content field.
func (m *Message) SetMultimodalContent(parts []ContentPart) {
	m.Content = ""
	m.Parts = parts
}

// AddPart appends a content part, migrating a legacy text-only message to
// the Parts representation on the first call (its Content becomes the
// first text part).
func (m *Message) AddPart(part ContentPart) {
	if !m.IsMultimodal() && m.Content != "" {
		m.Parts = append(m.Parts, NewTextPart(m.Content))
	}
	m.Content = ""
	m.Parts = append(m.Parts, part)
}

// AddTextPart appends a text part.
func (m *Message) AddTextPart(text string) {
	m.AddPart(NewTextPart(text))
}

// AddImagePartFromURL appends an image part referencing an external URL.
func (m *Message) AddImagePartFromURL(url string, detail *string) {
	m.AddPart(NewImagePartFromURL(url, detail))
}

// AddImagePart appends an image part loaded from a local file path.
func (m *Message) AddImagePart(filePath string, detail *string) error {
	part, err := NewImagePart(filePath, detail)
	if err != nil {
		return err
	}
	m.AddPart(part)
	return nil
}

// AddAudioPart appends an audio part loaded from a local file path.
func (m *Message) AddAudioPart(filePath string) error {
	part, err := NewAudioPart(filePath)
	if err != nil {
		return err
	}
	m.AddPart(part)
	return nil
}

// AddVideoPart appends a video part loaded from a local file path.
func (m *Message) AddVideoPart(filePath string) error {
	part, err := NewVideoPart(filePath)
	if err != nil {
		return err
	}
	m.AddPart(part)
	return nil
}

// AddDocumentPart appends a document part loaded from a local file path.
func (m *Message) AddDocumentPart(filePath string) error {
	part, err := NewDocumentPart(filePath)
	if err != nil {
		return err
	}
	m.AddPart(part)
	return nil
}
