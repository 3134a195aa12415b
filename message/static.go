package message

import "strings"

// Static is an in-memory Message for tests and local tooling: headers and
// body are supplied up front rather than parsed from wire bytes.
type Static struct {
	Headers    map[string][]string
	EnvelopeTo string
	EnvelopeFr string
	BodyText   string
	BodyRaw    string
	SizeBytes  int64

	attrs map[string]string
}

// NewStatic builds a Static message whose raw and decoded bodies are both
// bodyText and whose Size is len(bodyText).
func NewStatic(headers map[string][]string, envelopeFrom, envelopeTo, bodyText string) *Static {
	return &Static{
		Headers:    headers,
		EnvelopeFr: envelopeFrom,
		EnvelopeTo: envelopeTo,
		BodyText:   bodyText,
		BodyRaw:    bodyText,
		SizeBytes:  int64(len(bodyText)),
		attrs:      make(map[string]string),
	}
}

func (m *Static) Header(name string) ([]string, error) {
	for k, v := range m.Headers {
		if strings.EqualFold(k, name) {
			return v, nil
		}
	}
	return nil, nil
}

func (m *Static) Envelope(part string) (string, error) {
	switch strings.ToLower(part) {
	case "from":
		return m.EnvelopeFr, nil
	case "to":
		return m.EnvelopeTo, nil
	default:
		return "", nil
	}
}

func (m *Static) Size() int64 {
	if m.SizeBytes != 0 {
		return m.SizeBytes
	}
	return int64(len(m.BodyRaw))
}

func (m *Static) Body(contentType string) (string, error) {
	if contentType == "raw" {
		return m.BodyRaw, nil
	}
	return m.BodyText, nil
}

func (m *Static) Attribute(name string) (string, bool) {
	if m.attrs == nil {
		return "", false
	}
	v, ok := m.attrs[name]
	return v, ok
}

func (m *Static) SetAttribute(name, value string) {
	if m.attrs == nil {
		m.attrs = make(map[string]string)
	}
	m.attrs[name] = value
}

func (m *Static) AddHeader(name, value string, last bool) {
	if m.Headers == nil {
		m.Headers = make(map[string][]string)
	}
	if last {
		m.Headers[name] = append(m.Headers[name], value)
		return
	}
	m.Headers[name] = append([]string{value}, m.Headers[name]...)
}

func (m *Static) DeleteHeader(name, value string, index int) {
	existing := m.Headers[name]
	if existing == nil {
		return
	}
	var kept []string
	matched := 0
	for _, v := range existing {
		keep := true
		if value == "" || v == value {
			matched++
			if index == 0 || index == matched {
				keep = false
			}
		}
		if keep {
			kept = append(kept, v)
		}
	}
	m.Headers[name] = kept
}
