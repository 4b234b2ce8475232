// Package fuseki talks to an Apache Jena Fuseki compatible triple store over
// the SPARQL 1.1 Graph Store and Query protocols.
package fuseki

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultDataset is the dataset the graph is exported to.
const DefaultDataset = "lms-tools"

// StatusError reports a non-2xx response from the endpoint.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.Code, e.Body)
	}
	return fmt.Sprintf("%s: unexpected status %d", e.Op, e.Code)
}

// Client talks to one dataset of a Fuseki server.
type Client struct {
	baseURL    string
	dataset    string
	httpClient *http.Client
}

// New creates a Client for baseURL (e.g. http://localhost:3030) and dataset.
func New(baseURL, dataset string) *Client {
	if dataset == "" {
		dataset = DefaultDataset
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		dataset:    dataset,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) dataURL() string  { return c.baseURL + "/" + c.dataset + "/data" }
func (c *Client) queryURL() string { return c.baseURL + "/" + c.dataset + "/query" }

// Ping reports whether the server answers its health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/$/ping", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("pinging fuseki: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &StatusError{Op: "ping", Code: resp.StatusCode}
	}
	return nil
}

// Clear deletes the default graph of the dataset. A missing graph is not an error.
func (c *Client) Clear(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.dataURL()+"?default", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("clearing dataset %s: %w", c.dataset, err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	}
	return statusError("clear", resp)
}

// Upload posts a Turtle document into the default graph.
func (c *Client) Upload(ctx context.Context, turtle io.Reader) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.dataURL(), turtle)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/turtle; charset=utf-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("uploading to dataset %s: %w", c.dataset, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError("upload", resp)
	}
	return nil
}

// TurtleWriter is implemented by graphs that can serialize themselves.
type TurtleWriter interface {
	WriteTurtle(w io.Writer) error
}

// Export streams g as Turtle into the dataset, clearing it first when clear is set.
func (c *Client) Export(ctx context.Context, g TurtleWriter, clear bool) error {
	if clear {
		if err := c.Clear(ctx); err != nil {
			return err
		}
	}
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(g.WriteTurtle(pw))
	}()
	err := c.Upload(ctx, pr)
	pr.Close()
	return err
}

// Binding is one value of a SPARQL result row.
type Binding struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Datatype string `json:"datatype,omitempty"`
	Lang     string `json:"xml:lang,omitempty"`
}

// Results is a decoded application/sparql-results+json document.
type Results struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Results struct {
		Bindings []map[string]Binding `json:"bindings"`
	} `json:"results"`
	Boolean *bool `json:"boolean,omitempty"`
}

// Rows returns the bindings as plain strings keyed by variable name.
func (r *Results) Rows() []map[string]string {
	out := make([]map[string]string, len(r.Results.Bindings))
	for i, b := range r.Results.Bindings {
		row := make(map[string]string, len(b))
		for k, v := range b {
			row[k] = v.Value
		}
		out[i] = row
	}
	return out
}

// Query runs a SPARQL query and decodes the JSON results.
func (c *Client) Query(ctx context.Context, sparql string) (*Results, error) {
	form := url.Values{"query": {sparql}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.queryURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/sparql-results+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying dataset %s: %w", c.dataset, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("query", resp)
	}

	var res Results
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("decoding query results: %w", err)
	}
	return &res, nil
}

// SchemaStatsQuery counts the classes and properties declared in the dataset.
const SchemaStatsQuery = `PREFIX owl: <http://www.w3.org/2002/07/owl#>
PREFIX rdf: <http://www.w3.org/1999/02/22-rdf-syntax-ns#>

SELECT
    (COUNT(DISTINCT ?class) AS ?num_classes)
    (COUNT(DISTINCT ?objProp) AS ?num_object_properties)
    (COUNT(DISTINCT ?dataProp) AS ?num_data_properties)
WHERE {
    { ?class rdf:type owl:Class . }
    UNION { ?objProp rdf:type owl:ObjectProperty . }
    UNION { ?dataProp rdf:type owl:DatatypeProperty . }
}`

func statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{Op: op, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}
