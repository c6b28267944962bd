package cache

import "sort"

// Edge ties a parameter to an endpoint with its HTTP method and
// discovery provenance.
type Edge struct {
	Method string      `json:"method"`
	Param  string      `json:"param"`
	Source ParamSource `json:"source"`
}

// Graph is the normalized (endpoint → method → parameter → provenance)
// view built from crawler output. It shares the cache lock discipline:
// writes happen inside cache mutations, reads copy out.
type Graph struct {
	nodes map[string][]Edge
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{nodes: make(map[string][]Edge)}
}

// add is called under the cache write lock.
func (g *Graph) add(endpoint, method, param string, source ParamSource) {
	if method == "" {
		method = "GET"
	}
	for _, e := range g.nodes[endpoint] {
		if e.Method == method && e.Param == param && e.Source == source {
			return
		}
	}
	g.nodes[endpoint] = append(g.nodes[endpoint], Edge{Method: method, Param: param, Source: source})
}

// Endpoints returns all endpoints in the graph, sorted.
func (g *Graph) Endpoints() []string {
	out := make([]string, 0, len(g.nodes))
	for ep := range g.nodes {
		out = append(out, ep)
	}
	sort.Strings(out)
	return out
}

// Edges returns the edges for an endpoint.
func (g *Graph) Edges(endpoint string) []Edge {
	return append([]Edge(nil), g.nodes[NormalizeEndpoint(endpoint)]...)
}

// EndpointsWhere returns endpoints with at least one edge whose
// parameter satisfies pred against the cache's parameter state.
func (c *Cache) EndpointsWhere(pred func(ParamMeta) bool) []string {
	snap := c.Snapshot()
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []string
	for ep, edges := range c.graph.nodes {
		for _, e := range edges {
			meta, ok := snap.Parameters[e.Param]
			if ok && pred(meta) {
				out = append(out, ep)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// ReflectableEndpoints returns endpoints carrying a reflectable param.
func (c *Cache) ReflectableEndpoints() []string {
	return c.EndpointsWhere(func(m ParamMeta) bool { return m.Reflectable })
}

// SQLInjectableEndpoints returns endpoints carrying a SQL-candidate param.
func (c *Cache) SQLInjectableEndpoints() []string {
	return c.EndpointsWhere(func(m ParamMeta) bool { return m.SQLCandidate })
}

// FormEndpoints returns endpoints that have at least one form-sourced edge.
func (c *Cache) FormEndpoints() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []string
	for ep, edges := range c.graph.nodes {
		for _, e := range edges {
			if e.Source == SourceFormInput {
				out = append(out, ep)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}
