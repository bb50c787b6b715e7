package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// mediaSummary describes the non-text parts of a multimodal message for
// JSON consumers that only understand a flat "content" string — a UI or
// log sink that renders `content` as-is still gets something readable
// ("Here's a photo: [1 image(s)]") instead of losing the media entirely.
type mediaSummary struct {
	TotalParts    int                `json:"total_parts"`
	TextParts     int                `json:"text_parts"`
	ImageParts    int                `json:"image_parts,omitempty"`
	AudioParts    int                `json:"audio_parts,omitempty"`
	VideoParts    int                `json:"video_parts,omitempty"`
	DocumentParts int                `json:"document_parts,omitempty"`
	MediaItems    []mediaSummaryItem `json:"media_items,omitempty"`
}

type mediaSummaryItem struct {
	Type   string `json:"type"`
	Source string `json:"source"`
	Loaded bool   `json:"loaded"`
	Detail string `json:"detail,omitempty"`
}

// getMediaSummary computes a mediaSummary over the message's Parts.
func (m Message) getMediaSummary() mediaSummary {
	var s mediaSummary
	for _, part := range m.Parts {
		s.TotalParts++
		switch part.Type {
		case ContentTypeText:
			s.TextParts++
			continue
		case ContentTypeImage:
			s.ImageParts++
		case ContentTypeAudio:
			s.AudioParts++
		case ContentTypeVideo:
			s.VideoParts++
		case ContentTypeDocument:
			s.DocumentParts++
		default:
			continue
		}

		item := mediaSummaryItem{Type: part.Type}
		if part.Media != nil {
			switch {
			case part.Media.Data != nil:
				item.Source = "inline data"
				item.Loaded = true
			case part.Media.URL != nil:
				item.Source = *part.Media.URL
			case part.Media.FilePath != nil:
				item.Source = *part.Media.FilePath
			default:
				item.Source = "unknown"
			}
			if part.Media.Detail != nil {
				item.Detail = *part.Media.Detail
			}
		}
		s.MediaItems = append(s.MediaItems, item)
	}
	return s
}

// contentSummaryText renders the message's text parts followed by a
// bracketed summary of its media parts, e.g. "Look at this: [1 image(s)]".
func (s mediaSummary) describe() string {
	var pieces []string
	if s.ImageParts > 0 {
		pieces = append(pieces, fmt.Sprintf("%d image(s)", s.ImageParts))
	}
	if s.AudioParts > 0 {
		pieces = append(pieces, fmt.Sprintf("%d audio file(s)", s.AudioParts))
	}
	if s.VideoParts > 0 {
		pieces = append(pieces, fmt.Sprintf("%d video(s)", s.VideoParts))
	}
	if s.DocumentParts > 0 {
		pieces = append(pieces, fmt.Sprintf("%d document(s)", s.DocumentParts))
	}
	if len(pieces) == 0 {
		return ""
	}
	return "[" + strings.Join(pieces, ", ") + "]"
}

// messageJSON mirrors Message's JSON shape, substituting a flattened
// content string (and an optional media_summary) for the Parts field so
// existing consumers that only read `content` keep working unchanged
// when a message turns multimodal.
type messageJSON struct {
	Role         string                 `json:"role"`
	Content      string                 `json:"content"`
	MediaSummary *mediaSummary          `json:"media_summary,omitempty"`
	ToolCalls    []MessageToolCall      `json:"tool_calls,omitempty"`
	ToolResult   *MessageToolResult     `json:"tool_result,omitempty"`
	Timestamp    interface{}            `json:"timestamp,omitempty"`
	LatencyMs    int64                  `json:"latency_ms,omitempty"`
	CostInfo     *CostInfo              `json:"cost_info,omitempty"`
	Meta         map[string]interface{} `json:"meta,omitempty"`
	Validations  []ValidationResult     `json:"validations,omitempty"`
}

// MarshalJSON flattens a multimodal message's Parts into a plain text
// content string plus an optional media_summary, so the wire format stays
// a single "content" string for every consumer regardless of whether the
// message was built with the legacy Content field or AddPart/Parts.
func (m Message) MarshalJSON() ([]byte, error) {
	out := messageJSON{
		Role:        m.Role,
		ToolCalls:   m.ToolCalls,
		ToolResult:  m.ToolResult,
		LatencyMs:   m.LatencyMs,
		CostInfo:    m.CostInfo,
		Meta:        m.Meta,
		Validations: m.Validations,
	}
	if !m.Timestamp.IsZero() {
		out.Timestamp = m.Timestamp
	}

	if !m.IsMultimodal() {
		out.Content = m.Content
		return json.Marshal(out)
	}

	summary := m.getMediaSummary()
	text := m.GetContent()
	if desc := summary.describe(); desc != "" {
		if text != "" {
			text += " " + desc
		} else {
			text = desc
		}
	}
	out.Content = text
	if summary.TotalParts > summary.TextParts {
		out.MediaSummary = &summary
	}
	return json.Marshal(out)
}
