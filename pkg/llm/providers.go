package llm

// Provider tool-name constraints ([a-zA-Z0-9_-]) do not admit the dotted
// registry names such as githubService.createRepository. Adapters
// sanitise names on the way out and map them back on the way in.

func sanitizeToolName(in string) string {
	out := make([]rune, 0, len(in))
	for _, r := range in {
		if (r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') ||
			r == '_' || r == '-' {
			out = append(out, r)
		} else {
			out = append(out, '_')
		}
	}
	return string(out)
}

// buildNameMaps returns the canonical→sanitised and sanitised→canonical
// mappings for one request's tool set.
func buildNameMaps(defs []ToolDefinition) (map[string]string, map[string]string) {
	canonToProv := make(map[string]string, len(defs))
	provToCanon := make(map[string]string, len(defs))
	for _, def := range defs {
		sanitized := sanitizeToolName(def.Name)
		canonToProv[def.Name] = sanitized
		provToCanon[sanitized] = def.Name
	}
	return canonToProv, provToCanon
}

// canonicalToolName reverses sanitisation. Unknown names pass through so
// the dispatcher can reject them uniformly.
func canonicalToolName(provToCanon map[string]string, name string) string {
	if canonical, ok := provToCanon[name]; ok {
		return canonical
	}
	return name
}
