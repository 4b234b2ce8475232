package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/borisletic/lti-qa-tool/internal/config"
	"github.com/borisletic/lti-qa-tool/internal/engine"
	"github.com/borisletic/lti-qa-tool/internal/ingest"
	"github.com/borisletic/lti-qa-tool/internal/provenance"
	"github.com/borisletic/lti-qa-tool/internal/provenance/fuseki"
	"github.com/borisletic/lti-qa-tool/internal/storage"
)

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// --- ingest ---

var ingestCmd = &cobra.Command{
	Use:   "ingest <dir|file>...",
	Short: "Index course materials",
	Long: `Index course materials into a course collection.

Without --remote the files are indexed in-process against the local data
directory. With --remote they are uploaded to the running server and
processed by its worker; use this while the server is running so its
answer cache sees the change.

Examples:
  ltiqa ingest --course 101 ./materials
  ltiqa ingest --course 101 --watch ./materials
  ltiqa ingest --course 101 --remote lecture1.pdf notes.md`,
	RunE: func(cmd *cobra.Command, args []string) error {
		course, _ := cmd.Flags().GetString("course")
		watch, _ := cmd.Flags().GetBool("watch")
		remote, _ := cmd.Flags().GetBool("remote")

		if course == "" {
			return fmt.Errorf("--course is required")
		}
		if len(args) == 0 {
			return fmt.Errorf("at least one directory or file is required")
		}
		if watch && (remote || len(args) != 1) {
			return fmt.Errorf("--watch takes exactly one local directory")
		}

		ctx := cmdContext(cmd)
		if remote {
			return ingestRemote(ctx, course, args)
		}
		return ingestLocal(ctx, course, args, watch)
	},
}

func init() {
	ingestCmd.Flags().String("course", "", "course id the materials belong to")
	ingestCmd.Flags().Bool("watch", false, "keep the collection in sync with the directory")
	ingestCmd.Flags().Bool("remote", false, "upload to the running server instead of indexing locally")
}

// collectFiles expands directories into their supported files.
func collectFiles(args []string) ([]string, error) {
	var out []string
	for _, p := range args {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		files, err := ingest.SupportedFiles(p)
		if err != nil {
			return nil, err
		}
		out = append(out, files...)
	}
	return out, nil
}

func ingestLocal(ctx context.Context, course string, args []string, watch bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := engine.EnsureReady(ctx, a.backend, "", cfg.Ollama.EmbedModel, os.Stderr); err != nil {
		return err
	}

	var rep ingest.Report
	for _, p := range args {
		info, err := os.Stat(p)
		if err != nil {
			return err
		}
		if info.IsDir() {
			printStep("Indexing %s into course %s", p, course)
			r, err := ingest.Dir(ctx, a.registry, a.store, course, p)
			rep.Files = append(rep.Files, r.Files...)
			rep.Succeeded += r.Succeeded
			rep.Failed += r.Failed
			if err != nil {
				printReport(stdout, rep)
				return err
			}
			continue
		}
		out, err := ingest.File(ctx, a.registry, a.store, course, p)
		rep.Files = append(rep.Files, out)
		if err != nil {
			rep.Failed++
		} else {
			rep.Succeeded++
		}
	}
	printReport(stdout, rep)

	if !watch {
		if rep.Failed > 0 {
			return fmt.Errorf("%d of %d files failed", rep.Failed, len(rep.Files))
		}
		return nil
	}

	w := ingest.NewWatcher(a.registry, a.store, course, args[0], ingest.DefaultSettle)
	w.OnResult = func(kind ingest.ChangeKind, out ingest.Outcome, err error) {
		switch {
		case err != nil:
			printError("%s: %v", out.Filename, err)
		case kind == ingest.ChangeRemoved:
			printSuccess("Removed %s (%d fragments)", out.Filename, out.Fragments)
		default:
			printSuccess("Indexed %s (%d fragments)", out.Filename, out.Fragments)
		}
	}
	printStep("Watching %s, press Ctrl-C to stop", args[0])
	return w.Run(ctx)
}

func printReport(w io.Writer, rep ingest.Report) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tTYPE\tFRAGMENTS\tWORDS\tRESULT")
	for _, f := range rep.Files {
		result := "ok"
		if f.Error != "" {
			result = f.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", f.Filename, f.FileType, f.Fragments, f.Words, result)
	}
	tw.Flush()
	fmt.Fprintf(w, "%d succeeded, %d failed\n", rep.Succeeded, rep.Failed)
}

type uploadView struct {
	Course string `json:"course"`
	Files  []struct {
		Filename string `json:"filename"`
		JobID    string `json:"job_id"`
		Error    string `json:"error"`
	} `json:"files"`
}

func ingestRemote(ctx context.Context, course string, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no supported files found")
	}

	client, err := newAPIClient()
	if err != nil {
		return err
	}
	view, err := uploadMaterials(ctx, client, course, files)
	if err != nil {
		return err
	}
	for _, f := range view.Files {
		if f.Error != "" {
			printError("%s: %s", f.Filename, f.Error)
			continue
		}
		printSuccess("Queued %s (job %s)", f.Filename, f.JobID)
	}
	return nil
}

func uploadMaterials(ctx context.Context, client *apiClient, course string, files []string) (uploadView, error) {
	var view uploadView
	resp, err := client.upload(ctx, course, files)
	if err != nil {
		return view, err
	}
	err = decodeJSON(resp, &view)
	return view, err
}

// --- ask ---

type answerView struct {
	Answer     string  `json:"answer"`
	Confidence float64 `json:"confidence"`
	Cached     bool    `json:"cached"`
	QuestionID string  `json:"question_id"`
	Sources    []struct {
		ID       string  `json:"id"`
		Filename string  `json:"filename"`
		Distance float64 `json:"distance"`
	} `json:"sources"`
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question about a course",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		course, _ := cmd.Flags().GetString("course")
		user, _ := cmd.Flags().GetString("user")
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		ans, err := askQuestion(cmdContext(cmd), client, strings.Join(args, " "), course, user)
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(ans)
		}
		printAnswer(stdout, ans)
		return nil
	},
}

func init() {
	askCmd.Flags().String("course", "", "course id")
	askCmd.Flags().String("user", "cli", "user id recorded with the question")
	askCmd.Flags().Bool("json", false, "print the raw JSON response")
}

func askQuestion(ctx context.Context, client *apiClient, question, course, user string) (answerView, error) {
	var ans answerView
	resp, err := client.post(ctx, "/api/ask", map[string]string{
		"question": question,
		"course":   course,
		"user":     user,
	})
	if err != nil {
		return ans, err
	}
	err = decodeJSON(resp, &ans)
	return ans, err
}

func printAnswer(w io.Writer, ans answerView) {
	fmt.Fprintln(w, ans.Answer)
	fmt.Fprintln(w)
	label := "confidence " + percent(ans.Confidence)
	if ans.Cached {
		label += ", cached"
	}
	fmt.Fprintln(w, colorize(colorCyan, label))
	for _, s := range ans.Sources {
		fmt.Fprintf(w, "  - %s (%s, distance %.3f)\n", s.Filename, s.ID, s.Distance)
	}
	if ans.QuestionID != "" {
		fmt.Fprintf(w, "question id: %s\n", ans.QuestionID)
	}
}

// --- feedback ---

var feedbackCmd = &cobra.Command{
	Use:   "feedback <question-id> <rating>",
	Short: "Rate an answer from 1 to 5",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rating, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("rating must be a number: %w", err)
		}
		comment, _ := cmd.Flags().GetString("comment")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmdContext(cmd), "/api/feedback", map[string]any{
			"question_id": args[0],
			"rating":      rating,
			"comment":     comment,
		})
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Recorded feedback %s", result["feedback_id"])
		return nil
	},
}

func init() {
	feedbackCmd.Flags().String("comment", "", "free-text comment")
}

// --- similar ---

type similarView struct {
	QuestionID  string    `json:"question_id"`
	Question    string    `json:"question"`
	Answer      string    `json:"answer"`
	Confidence  float64   `json:"confidence"`
	GeneratedAt time.Time `json:"generated_at"`
}

var similarCmd = &cobra.Command{
	Use:   "similar <question>",
	Short: "List previously answered questions sharing keywords",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		course, _ := cmd.Flags().GetString("course")
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		q := url.Values{"q": {strings.Join(args, " ")}, "limit": {strconv.Itoa(limit)}}
		if course != "" {
			q.Set("course", course)
		}
		resp, err := client.get(cmdContext(cmd), "/api/similar?"+q.Encode())
		if err != nil {
			return err
		}
		var items []similarView
		if err := decodeJSON(resp, &items); err != nil {
			return err
		}
		if len(items) == 0 {
			printWarning("No similar questions")
			return nil
		}
		tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "CONFIDENCE\tQUESTION\tANSWER")
		for _, it := range items {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", percent(it.Confidence), truncate(it.Question, 50), truncate(it.Answer, 60))
		}
		return tw.Flush()
	},
}

func init() {
	similarCmd.Flags().String("course", "", "course id")
	similarCmd.Flags().Int("limit", 5, "maximum number of results")
}

// --- stats ---

type statsView struct {
	Course     string `json:"course"`
	Collection struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	} `json:"collection"`
	Questions struct {
		QuestionCount  int     `json:"question_count"`
		MeanConfidence float64 `json:"mean_confidence"`
		FeedbackCount  int     `json:"feedback_count"`
		MeanRating     float64 `json:"mean_rating"`
	} `json:"questions"`
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show collection and question statistics for a course",
	RunE: func(cmd *cobra.Command, args []string) error {
		course, _ := cmd.Flags().GetString("course")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		path := "/api/stats"
		if course != "" {
			path += "?course=" + url.QueryEscape(course)
		}
		resp, err := client.get(cmdContext(cmd), path)
		if err != nil {
			return err
		}
		var st statsView
		if err := decodeJSON(resp, &st); err != nil {
			return err
		}
		printStatus("Course", "%s", st.Course)
		printStatus("Collection", "%s (%d fragments)", st.Collection.Name, st.Collection.Count)
		printStatus("Questions", "%d (mean confidence %s)", st.Questions.QuestionCount, percent(st.Questions.MeanConfidence))
		printStatus("Feedback", "%d (mean rating %.1f)", st.Questions.FeedbackCount, st.Questions.MeanRating)
		return nil
	},
}

func init() {
	statsCmd.Flags().String("course", "", "course id")
}

// --- materials ---

var materialsCmd = &cobra.Command{
	Use:   "materials",
	Short: "List or remove indexed course materials",
}

type documentView struct {
	Filename  string    `json:"filename"`
	FileType  string    `json:"file_type"`
	Fragments int       `json:"fragments"`
	Status    string    `json:"status"`
	LastError string    `json:"last_error"`
	UpdatedAt time.Time `json:"updated_at"`
}

var materialsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the materials of a course",
	RunE: func(cmd *cobra.Command, args []string) error {
		course, _ := cmd.Flags().GetString("course")
		if course == "" {
			return fmt.Errorf("--course is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmdContext(cmd), "/api/admin/materials?course="+url.QueryEscape(course))
		if err != nil {
			return err
		}
		var docs []documentView
		if err := decodeJSON(resp, &docs); err != nil {
			return err
		}
		tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "FILE\tTYPE\tFRAGMENTS\tSTATUS\tUPDATED")
		for _, d := range docs {
			status := d.Status
			if d.LastError != "" {
				status += ": " + truncate(d.LastError, 40)
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", d.Filename, d.FileType, d.Fragments, status, d.UpdatedAt.Format(time.DateTime))
		}
		return tw.Flush()
	},
}

var materialsRemoveCmd = &cobra.Command{
	Use:   "remove <course> <filename>",
	Short: "Remove a material and its fragments",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		path := "/api/admin/materials/" + url.PathEscape(args[0]) + "/" + url.PathEscape(args[1])
		resp, err := client.delete(cmdContext(cmd), path)
		if err != nil {
			return err
		}
		var result struct {
			Fragments int `json:"fragments"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Removed %s (%d fragments)", args[1], result.Fragments)
		return nil
	},
}

func init() {
	materialsListCmd.Flags().String("course", "", "course id")
	materialsCmd.AddCommand(materialsListCmd)
	materialsCmd.AddCommand(materialsRemoveCmd)
}

// --- jobs ---

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect the ingest job queue",
}

type jobView struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error"`
	UpdatedAt time.Time `json:"updated_at"`
}

func fetchJobs(ctx context.Context, client *apiClient, limit int) ([]jobView, error) {
	resp, err := client.get(ctx, fmt.Sprintf("/api/admin/jobs?limit=%d", limit))
	if err != nil {
		return nil, err
	}
	var jobs []jobView
	err = decodeJSON(resp, &jobs)
	return jobs, err
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		jobs, err := fetchJobs(cmdContext(cmd), client, limit)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSTATUS\tATTEMPTS\tUPDATED\tERROR")
		for _, j := range jobs {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", j.ID, j.Status, j.Attempts, j.UpdatedAt.Format(time.DateTime), truncate(j.LastError, 50))
		}
		return tw.Flush()
	},
}

var jobsRetryCmd = &cobra.Command{
	Use:   "retry <id>",
	Short: "Requeue a failed job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmdContext(cmd), "/api/admin/jobs/"+url.PathEscape(args[0])+"/retry", nil)
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Requeued job %s", args[0])
		return nil
	},
}

func init() {
	jobsListCmd.Flags().Int("limit", 20, "maximum number of jobs")
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsRetryCmd)
}

// --- export ---

// openGraph loads the provenance graph from the local data directory without
// the retrieval stack.
func openGraph(ctx context.Context, cfg config.Config) (*provenance.Graph, func() error, error) {
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("opening storage: %w", err)
	}
	g, err := provenance.Open(ctx, provenance.NewStoreLog(store),
		provenance.WithLanguage(cfg.Answer.Language),
		provenance.WithKeywordPolicy(cfg.Cache.MaxKeywords, cfg.Cache.MinKeywordLen),
	)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("loading provenance graph: %w", err)
	}
	return g, store.Close, nil
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the provenance graph",
	Long: `Export the provenance graph as Turtle or N-Triples, or push it to a
Fuseki dataset.

Examples:
  ltiqa export > graph.ttl
  ltiqa export --format ntriples --out graph.nt
  ltiqa export --fuseki --url http://localhost:3030 --dataset lms-tools --clear`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		out, _ := cmd.Flags().GetString("out")
		toFuseki, _ := cmd.Flags().GetBool("fuseki")
		clearFirst, _ := cmd.Flags().GetBool("clear")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if u, _ := cmd.Flags().GetString("url"); u != "" {
			cfg.Fuseki.URL = u
		}
		if ds, _ := cmd.Flags().GetString("dataset"); ds != "" {
			cfg.Fuseki.Dataset = ds
		}

		ctx := cmdContext(cmd)
		g, closeFn, err := openGraph(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeFn()

		if toFuseki {
			c := fuseki.New(cfg.Fuseki.URL, cfg.Fuseki.Dataset)
			if err := c.Export(ctx, g, clearFirst); err != nil {
				return err
			}
			printSuccess("Exported %d triples to %s/%s", g.Len(), cfg.Fuseki.URL, cfg.Fuseki.Dataset)
			return nil
		}

		w := stdout
		if out != "" {
			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			w = f
		}
		if err := writeGraph(w, g, format); err != nil {
			return err
		}
		if out != "" {
			printSuccess("Graph exported to %s", out)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().String("format", "turtle", "turtle or ntriples")
	exportCmd.Flags().String("out", "", "output file path (default: stdout)")
	exportCmd.Flags().Bool("fuseki", false, "upload to the configured Fuseki dataset")
	exportCmd.Flags().String("url", "", "Fuseki base URL (overrides fuseki.url)")
	exportCmd.Flags().String("dataset", "", "Fuseki dataset (overrides fuseki.dataset)")
	exportCmd.Flags().Bool("clear", false, "clear the dataset before uploading")
}

func writeGraph(w io.Writer, g *provenance.Graph, format string) error {
	switch format {
	case "", "turtle", "ttl":
		return g.WriteTurtle(w)
	case "ntriples", "nt":
		return g.WriteNTriples(w)
	}
	return fmt.Errorf("unknown format %q (want turtle or ntriples)", format)
}

// --- match ---

type tripleView struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
	Kind      string `json:"kind"`
}

func matchTriples(ctx context.Context, client *apiClient, s, p, o string, limit int) ([]tripleView, error) {
	q := url.Values{}
	if s != "" {
		q.Set("s", s)
	}
	if p != "" {
		q.Set("p", p)
	}
	if o != "" {
		q.Set("o", o)
	}
	q.Set("limit", strconv.Itoa(limit))
	resp, err := client.get(ctx, "/api/admin/graph/match?"+q.Encode())
	if err != nil {
		return nil, err
	}
	var triples []tripleView
	err = decodeJSON(resp, &triples)
	return triples, err
}

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "List provenance triples matching a pattern",
	Example: `  ltiqa match --p http://example.org/lms-tools#inCourse
  ltiqa match --s http://example.org/questions/<id> --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _ := cmd.Flags().GetString("s")
		p, _ := cmd.Flags().GetString("p")
		o, _ := cmd.Flags().GetString("o")
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")
		if s == "" && p == "" && o == "" {
			return errors.New("at least one of --s, --p or --o is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		triples, err := matchTriples(cmdContext(cmd), client, s, p, o, limit)
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(triples)
		}
		tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		for _, t := range triples {
			obj := t.Object
			if t.Kind == "literal" {
				obj = strconv.Quote(truncate(obj, 60))
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", t.Subject, t.Predicate, obj)
		}
		return tw.Flush()
	},
}

func init() {
	matchCmd.Flags().String("s", "", "subject IRI")
	matchCmd.Flags().String("p", "", "predicate IRI")
	matchCmd.Flags().String("o", "", "object IRI or literal value")
	matchCmd.Flags().Int("limit", 100, "maximum number of triples")
	matchCmd.Flags().Bool("json", false, "print raw JSON")
}

// --- sparql ---

var sparqlCmd = &cobra.Command{
	Use:   "sparql [query]",
	Short: "Run a SPARQL query against the Fuseki dataset",
	Long: `Run a SPARQL query against the configured Fuseki dataset. The query is
read from stdin when no argument is given. --schema runs the built-in
class and property count query.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		schema, _ := cmd.Flags().GetBool("schema")

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		var query string
		switch {
		case schema:
			query = fuseki.SchemaStatsQuery
		case len(args) > 0:
			query = strings.Join(args, " ")
		default:
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("reading query: %w", err)
			}
			query = string(b)
		}
		if strings.TrimSpace(query) == "" {
			return errors.New("empty query")
		}

		res, err := fuseki.New(cfg.Fuseki.URL, cfg.Fuseki.Dataset).Query(cmdContext(cmd), query)
		if err != nil {
			return err
		}
		return printResults(stdout, res)
	},
}

func init() {
	sparqlCmd.Flags().Bool("schema", false, "count classes and properties")
}

func printResults(w io.Writer, res *fuseki.Results) error {
	if res.Boolean != nil {
		_, err := fmt.Fprintln(w, *res.Boolean)
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(res.Head.Vars, "\t"))
	for _, row := range res.Rows() {
		vals := make([]string, len(res.Head.Vars))
		for i, v := range res.Head.Vars {
			vals[i] = row[v]
		}
		fmt.Fprintln(tw, strings.Join(vals, "\t"))
	}
	return tw.Flush()
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(stdout, "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value in config.toml. Valid keys:\n  " + strings.Join(config.ValidKeys(), "\n  "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
