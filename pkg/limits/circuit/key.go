package circuit

import "strings"

// keyEscaper percent-encodes the separators so distinct parameter sets
// never produce the same key.
var keyEscaper = strings.NewReplacer("%", "%25", "|", "%7C", "=", "%3D")

// identifyingParams are the call parameters that distinguish one circuit
// from another for the same operation, in sorted order.
var identifyingParams = []string{"cwd", "model", "provider", "workingDirectory"}

// MakeKey derives a circuit key from an operation name and its parameters.
// Only identifying parameters are used, in a fixed order, so calls against
// the same target share one circuit whatever else they pass. Values have
// '%', '|' and '=' percent-encoded.
//
//	MakeKey("review", map[string]string{"cwd": "/repo", "prompt": "..."})
//	// "review|cwd=/repo"
func MakeKey(operation string, params map[string]string) string {
	var b strings.Builder
	b.WriteString(keyEscaper.Replace(operation))
	for _, name := range identifyingParams {
		v, ok := params[name]
		if !ok || v == "" {
			continue
		}
		b.WriteByte('|')
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(keyEscaper.Replace(v))
	}
	return b.String()
}
