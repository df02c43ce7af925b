package normalizer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/ovolkov/expenseflow/internal/domain"
	"github.com/ovolkov/expenseflow/internal/extractor"
)

// Oracle infers the column-to-field mapping for a batch of raw rows and
// returns canonical candidates. An error (including timeout or unparseable
// output) signals the caller to fall back to the heuristic mapper; it is
// never fatal to the pipeline.
type Oracle interface {
	MapRows(ctx context.Context, columns []string, rows []extractor.RawRow, year string) ([]domain.Expense, error)
}

// GeminiOracle maps rows by prompting Gemini for a STRICT JSON array of
// four-field expense objects.
type GeminiOracle struct {
	apiKey  string
	model   string
	timeout time.Duration
}

// NewGeminiOracle creates an oracle bound to one model with a per-call timeout.
func NewGeminiOracle(apiKey, model string, timeout time.Duration) *GeminiOracle {
	return &GeminiOracle{apiKey: apiKey, model: model, timeout: timeout}
}

// MapRows implements Oracle.
func (o *GeminiOracle) MapRows(ctx context.Context, columns []string, rows []extractor.RawRow, year string) ([]domain.Expense, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	prompt, err := buildMappingPrompt(columns, rows, year)
	if err != nil {
		return nil, fmt.Errorf("MapRows: building prompt: %w", err)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      o.apiKey,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("MapRows: create genai client: %w", err)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: prompt},
			},
		},
	}

	resp, err := client.Models.GenerateContent(ctx, o.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("MapRows: generate content: %w", err)
	}

	rawText := resp.Text()
	if rawText == "" {
		return nil, fmt.Errorf("MapRows: empty response from model")
	}

	return decodeOracleResponse(rawText)
}

// buildMappingPrompt renders the raw batch plus the target shape and year
// hint into the model prompt.
func buildMappingPrompt(columns []string, rows []extractor.RawRow, year string) (string, error) {
	batch, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal rows: %w", err)
	}

	var b strings.Builder
	b.WriteString("You are an expert normalizer for spreadsheet expense records.\n\n")
	fmt.Fprintf(&b, "The source columns, in original order, are: %s.\n", strings.Join(columns, ", "))
	fmt.Fprintf(&b, "The records belong to year %s.\n\n", year)
	b.WriteString("Input rows:\n")
	b.Write(batch)
	b.WriteString("\n\nTask:\n")
	b.WriteString("- Identify which columns represent date, category, description and amount.\n")
	fmt.Fprintf(&b, "- Convert every date to ISO format \"YYYY-MM-DD\", using year %s when the source date has no year component.\n", year)
	b.WriteString("- Amounts must be numbers; keep the sign (refunds may be negative).\n")
	b.WriteString("- Assign a short category when the source has none (e.g. Transport, Food, Office, Utilities).\n")
	b.WriteString("- Preserve or clean the description text.\n\n")
	b.WriteString("Output STRICT JSON only: a JSON array with exactly one object per input row,\n")
	b.WriteString("each with exactly these fields:\n")
	b.WriteString("{\"date\": \"YYYY-MM-DD\", \"category\": \"...\", \"description\": \"...\", \"amount\": 0.00}\n\n")
	b.WriteString("Do NOT wrap the response in code fences.\n")
	b.WriteString("Do NOT use ```json or any Markdown.\n")
	b.WriteString("Output must begin with \"[\" and end with \"]\".\n")

	return b.String(), nil
}

// decodeOracleResponse parses model text into candidates. Any structural
// problem is an error so the caller can fall back to the heuristic.
func decodeOracleResponse(raw string) ([]domain.Expense, error) {
	clean := cleanModelJSON(raw)

	var items []map[string]interface{}
	if err := json.Unmarshal([]byte(clean), &items); err != nil {
		return nil, fmt.Errorf("decodeOracleResponse: unmarshal JSON: %w", err)
	}

	result := make([]domain.Expense, 0, len(items))
	for i, obj := range items {
		date, err := getStringField(obj, "date")
		if err != nil {
			return nil, fmt.Errorf("candidate %d: %w", i, err)
		}
		category, err := getStringField(obj, "category")
		if err != nil {
			return nil, fmt.Errorf("candidate %d: %w", i, err)
		}
		description, err := getStringField(obj, "description")
		if err != nil {
			return nil, fmt.Errorf("candidate %d: %w", i, err)
		}
		amount, err := getFloat64Field(obj, "amount")
		if err != nil {
			return nil, fmt.Errorf("candidate %d: %w", i, err)
		}

		result = append(result, domain.Expense{
			Date:        date,
			Category:    category,
			Description: description,
			Amount:      amount,
		})
	}

	return result, nil
}

// cleanModelJSON strips Markdown fences and surrounding junk when the model
// ignores the plain-JSON instruction.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	s = strings.TrimSpace(s)

	// Keep only the first '[' through the last ']' if extra text survived.
	if start := strings.Index(s, "["); start != -1 {
		if end := strings.LastIndex(s, "]"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}

	return s
}

func getStringField(m map[string]interface{}, key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", fmt.Errorf("missing required field %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q has type %T, want string", key, v)
	}
	return s, nil
}

func getFloat64Field(m map[string]interface{}, key string) (float64, error) {
	v, ok := m[key]
	if !ok {
		return 0, fmt.Errorf("missing required field %q", key)
	}
	switch val := v.(type) {
	case float64:
		return val, nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return 0, fmt.Errorf("field %q is not numeric: %w", key, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("field %q has type %T, want number", key, v)
	}
}
