package llm

import (
	"fmt"
	"strings"
)

// ExtractionSchema defines the structure for LLM-based content extraction.
type ExtractionSchema struct {
	Name        string        // Schema name (e.g., "VideoAnalysis")
	Description string        // System prompt preamble describing the extraction task
	Fields      []SchemaField // Expected output fields
}

// SchemaField defines a single field in the extraction output.
type SchemaField struct {
	Name        string // JSON field name
	Type        string // Type hint: "string", "[]string", "bool"
	Description string // Description for the LLM
	Required    bool   // Whether this field is required
}

// BuildExtractionPrompt constructs the LLM prompt from schema and input text.
func BuildExtractionPrompt(schema ExtractionSchema, inputText string) string {
	var sb strings.Builder

	sb.WriteString(schema.Description)
	sb.WriteString("\n\n")

	sb.WriteString("Return ONLY valid JSON matching this exact structure:\n{\n")
	for i, field := range schema.Fields {
		typeHint := field.Type
		if typeHint == "" {
			typeHint = "string"
		}
		requiredHint := ""
		if field.Required {
			requiredHint = " (required)"
		}
		sb.WriteString(fmt.Sprintf("  \"%s\": %s%s", field.Name, typeHint, requiredHint))
		if field.Description != "" {
			sb.WriteString(fmt.Sprintf(" // %s", field.Description))
		}
		if i < len(schema.Fields)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("}\n\n")

	sb.WriteString("IMPORTANT:\n")
	sb.WriteString("- Base every field on the input text only, do not invent details.\n")
	sb.WriteString("- Return ONLY the JSON object, no markdown, no explanation, no code blocks.\n\n")

	sb.WriteString("Input text:\n\"\"\"\n")
	sb.WriteString(inputText)
	sb.WriteString("\n\"\"\"\n")

	return sb.String()
}

// VideoAnalysisSchema returns the extraction schema for an admitted video's
// title and channel metadata.
func VideoAnalysisSchema() ExtractionSchema {
	return ExtractionSchema{
		Name: "VideoAnalysis",
		Description: `You are an expert curriculum reviewer for an instructional video library.
Your task is to classify a video from its title and channel metadata.
Judge only what the metadata supports; when uncertain, prefer conservative answers.`,
		Fields: []SchemaField{
			{
				Name:        "is_instructional",
				Type:        "true|false",
				Description: "Whether the video teaches a skill or concept, as opposed to entertainment or commentary",
				Required:    true,
			},
			{
				Name:        "topics",
				Type:        "[\"string\"]",
				Description: "Up to five short topic labels covered by the video",
				Required:    true,
			},
			{
				Name:        "difficulty",
				Type:        "\"beginner\"|\"intermediate\"|\"advanced\"",
				Description: "The likely audience skill level",
				Required:    true,
			},
			{
				Name:        "summary",
				Type:        "\"string\"",
				Description: "One sentence describing what a learner would get from the video",
				Required:    true,
			},
		},
	}
}
