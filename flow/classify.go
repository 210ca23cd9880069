package flow

import "strings"

// ErrorKind is the taxonomy the recovery layer classifies a node
// failure into.
type ErrorKind string

const (
	KindNetwork       ErrorKind = "network"
	KindTimeout       ErrorKind = "timeout"
	KindResource      ErrorKind = "resource"
	KindPermission    ErrorKind = "permission"
	KindConfiguration ErrorKind = "configuration"
	KindData          ErrorKind = "data"
	KindDependency    ErrorKind = "dependency"
	KindExecution     ErrorKind = "execution"
	KindValidation    ErrorKind = "validation"
	KindQuota         ErrorKind = "quota"
)

// classifyOrder is checked in order; the first kind whose keyword list
// matches (case-insensitive substring) wins. validation/quota are never
// matched by keyword — callers set them explicitly by wrapping a
// *WorkflowError with that Kind before it reaches ClassifyError.
var classifyOrder = []struct {
	kind     ErrorKind
	keywords []string
}{
	{KindNetwork, []string{"connection", "network", "dns", "socket", "http"}},
	{KindTimeout, []string{"timeout"}},
	{KindResource, []string{"memory", "disk", "resource", "limit", "quota"}},
	{KindPermission, []string{"permission", "unauthorized", "forbidden", "access"}},
	{KindConfiguration, []string{"config", "configuration", "missing", "invalid"}},
	{KindData, []string{"json", "parse", "format", "decode", "encode"}},
	{KindDependency, []string{"import", "module", "dependency", "not found"}},
}

// ClassifyError derives an ErrorKind from err, honoring an explicit Kind
// on a *WorkflowError before falling back to keyword matching, and
// finally defaulting to KindExecution.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return KindExecution
	}
	if we, ok := err.(*WorkflowError); ok && we.Kind != "" {
		return ErrorKind(we.Kind)
	}
	msg := strings.ToLower(err.Error())
	for _, entry := range classifyOrder {
		for _, kw := range entry.keywords {
			if strings.Contains(msg, kw) {
				return entry.kind
			}
		}
	}
	return KindExecution
}
