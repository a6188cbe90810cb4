// Package odootest runs an in-memory Odoo that speaks XML-RPC over httptest.
// It implements the small part of the ORM the service uses: authenticate,
// search, search_read, search_count, read, create and write, with AND-only
// domains.
package odootest

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"gitea.jw6.us/james/odoolink/internal/config"
	"gitea.jw6.us/james/odoolink/internal/xmlrpc"
)

const (
	Database = "odoolink"
	Username = "bot@example.com"
	Password = "secret"
	UID      = 2
)

// Call is one request received by the server.
type Call struct {
	Service string
	Method  string
	Model   string
	// Op is the ORM method for execute_kw calls.
	Op     string
	Args   []xmlrpc.Value
	Kwargs xmlrpc.Value
}

// Server is a fake Odoo instance.
type Server struct {
	*httptest.Server

	mu      sync.Mutex
	records map[string]map[int64][]xmlrpc.Member
	nextID  int64
	calls   []Call
	faults  map[string]string
	status  int
	body    string
	delay   time.Duration
	badAuth bool
}

// New starts a server and stops it when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		records: make(map[string]map[int64][]xmlrpc.Member),
		nextID:  100,
		faults:  make(map[string]string),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// Env returns an environment pointing at the server.
func (s *Server) Env() config.Env {
	return config.Env{
		"ODOO_URL":      s.URL,
		"ODOO_DB":       Database,
		"ODOO_USERNAME": Username,
		"ODOO_PASSWORD": Password,
	}
}

// Connection returns a connection config pointing at the server.
func (s *Server) Connection() config.Connection {
	return config.Connection{
		URL:         s.URL,
		Database:    Database,
		Username:    Username,
		Password:    Password,
		Timeout:     5 * time.Second,
		PhoneField:  config.DefaultPhoneField,
		SalesUserID: config.DefaultSalesUserID,
		DefaultTag:  config.DefaultTag,
	}
}

// Fail makes every later call of model.op return a fault with message. Use
// model "common" to fail a common service method such as authenticate.
func (s *Server) Fail(model, op, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[model+"."+op] = message
}

// RejectLogins makes authenticate return false.
func (s *Server) RejectLogins() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.badAuth = true
}

// RespondWithStatus makes every later request fail with the HTTP status.
func (s *Server) RespondWithStatus(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = code
}

// RespondWithBody makes every later request answer 200 with body, as a
// proxy or maintenance page in front of Odoo would.
func (s *Server) RespondWithBody(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.body = body
}

// Delay holds every later response for d.
func (s *Server) Delay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Seed stores a record and returns its id. Values go through xmlrpc.ValueOf.
func (s *Server) Seed(model string, fields map[string]any) int64 {
	v, err := xmlrpc.ValueOf(fields)
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(model, v.Members())
}

// Records returns every record of model, ordered by id, with an id member.
func (s *Server) Records(model string) []xmlrpc.Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []xmlrpc.Value
	for _, id := range s.sortedIDs(model) {
		out = append(out, s.project(model, id, nil))
	}
	return out
}

// Calls returns the requests received so far.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CountCalls counts calls of method (for common) or model.op (for object).
func (s *Server) CountCalls(name string) int {
	n := 0
	for _, c := range s.Calls() {
		if c.Method == name || c.Model+"."+c.Op == name {
			n++
		}
	}
	return n
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	method, params, err := xmlrpc.DecodeCall(body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	delay, status, canned := s.delay, s.status, s.body
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	if status != 0 {
		w.WriteHeader(status)
		return
	}
	if canned != "" {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(canned))
		return
	}

	w.Header().Set("Content-Type", "text/xml")

	var result xmlrpc.Value
	var fault *xmlrpc.Fault
	switch r.URL.Path {
	case "/xmlrpc/2/common":
		result, fault = s.common(method, params)
	case "/xmlrpc/2/object":
		result, fault = s.object(method, params)
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if fault != nil {
		_, _ = w.Write(xmlrpc.EncodeFault(fault))
		return
	}
	_, _ = w.Write(xmlrpc.EncodeResponse(result))
}

func (s *Server) common(method string, params []xmlrpc.Value) (xmlrpc.Value, *xmlrpc.Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Service: "common", Method: method, Args: params})
	if msg, ok := s.faults["common."+method]; ok {
		return xmlrpc.Value{}, &xmlrpc.Fault{Code: "1", Message: msg}
	}

	switch method {
	case "version":
		return xmlrpc.Struct(
			xmlrpc.Member{Name: "server_version", Value: xmlrpc.String("17.0")},
			xmlrpc.Member{Name: "protocol_version", Value: xmlrpc.Int(1)},
		), nil
	case "authenticate":
		if len(params) < 3 || s.badAuth {
			return xmlrpc.Bool(false), nil
		}
		db, _ := params[0].AsString()
		user, _ := params[1].AsString()
		pass, _ := params[2].AsString()
		if db != Database || user != Username || pass != Password {
			return xmlrpc.Bool(false), nil
		}
		return xmlrpc.Int(UID), nil
	}
	return xmlrpc.Value{}, &xmlrpc.Fault{Code: "1", Message: "method \"" + method + "\" is not supported"}
}

func (s *Server) object(method string, params []xmlrpc.Value) (xmlrpc.Value, *xmlrpc.Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if method != "execute_kw" || len(params) < 6 {
		return xmlrpc.Value{}, &xmlrpc.Fault{Code: "1", Message: "bad execute_kw call"}
	}
	uid, _ := params[1].AsInt()
	pass, _ := params[2].AsString()
	model, _ := params[3].AsString()
	op, _ := params[4].AsString()
	args := params[5].Items()
	kwargs := xmlrpc.Struct()
	if len(params) > 6 {
		kwargs = params[6]
	}
	s.calls = append(s.calls, Call{Service: "object", Method: method, Model: model, Op: op, Args: args, Kwargs: kwargs})

	if uid != UID || pass != Password {
		return xmlrpc.Value{}, &xmlrpc.Fault{Code: "3", Message: "Access Denied"}
	}
	if msg, ok := s.faults[model+"."+op]; ok {
		return xmlrpc.Value{}, &xmlrpc.Fault{Code: "2", Message: msg}
	}

	arg := func(i int) xmlrpc.Value {
		if i < len(args) {
			return args[i]
		}
		return xmlrpc.Array()
	}
	limit := 0
	if v, ok := kwargs.Get("limit"); ok {
		n, _ := v.AsInt()
		limit = int(n)
	}
	var fields []string
	if v, ok := kwargs.Get("fields"); ok {
		for _, f := range v.Items() {
			name, _ := f.AsString()
			fields = append(fields, name)
		}
	}

	switch op {
	case "search":
		ids := s.search(model, arg(0), limit)
		items := make([]xmlrpc.Value, 0, len(ids))
		for _, id := range ids {
			items = append(items, xmlrpc.Int(id))
		}
		return xmlrpc.Array(items...), nil
	case "search_count":
		return xmlrpc.Int(int64(len(s.search(model, arg(0), 0)))), nil
	case "search_read":
		ids := s.search(model, arg(0), limit)
		items := make([]xmlrpc.Value, 0, len(ids))
		for _, id := range ids {
			items = append(items, s.project(model, id, fields))
		}
		return xmlrpc.Array(items...), nil
	case "read":
		var items []xmlrpc.Value
		for _, idv := range arg(0).Items() {
			id, _ := idv.AsInt()
			if _, ok := s.records[model][id]; ok {
				items = append(items, s.project(model, id, fields))
			}
		}
		return xmlrpc.Array(items...), nil
	case "create":
		vals := arg(0)
		if vals.Kind() == xmlrpc.KindArray {
			var ids []xmlrpc.Value
			for _, item := range vals.Items() {
				ids = append(ids, xmlrpc.Int(s.insert(model, item.Members())))
			}
			return xmlrpc.Array(ids...), nil
		}
		if vals.Kind() != xmlrpc.KindStruct {
			return xmlrpc.Value{}, &xmlrpc.Fault{Code: "2", Message: "create expects a dict of values"}
		}
		return xmlrpc.Int(s.insert(model, vals.Members())), nil
	case "write":
		for _, idv := range arg(0).Items() {
			id, _ := idv.AsInt()
			rec, ok := s.records[model][id]
			if !ok {
				return xmlrpc.Value{}, &xmlrpc.Fault{Code: "2", Message: "Record does not exist or has been deleted."}
			}
			s.records[model][id] = merge(rec, arg(1).Members())
		}
		return xmlrpc.Bool(true), nil
	}
	return xmlrpc.Value{}, &xmlrpc.Fault{Code: "1", Message: "The method '" + op + "' does not exist on the model '" + model + "'"}
}

func (s *Server) insert(model string, members []xmlrpc.Member) int64 {
	if s.records[model] == nil {
		s.records[model] = make(map[int64][]xmlrpc.Member)
	}
	s.nextID++
	id := s.nextID
	rec := merge(nil, members)
	if _, ok := lookup(rec, "create_date"); !ok {
		rec = append(rec, xmlrpc.Member{Name: "create_date", Value: xmlrpc.String(time.Now().UTC().Format("2006-01-02 15:04:05"))})
	}
	s.records[model][id] = rec
	return id
}

func (s *Server) sortedIDs(model string) []int64 {
	ids := make([]int64, 0, len(s.records[model]))
	for id := range s.records[model] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *Server) search(model string, domain xmlrpc.Value, limit int) []int64 {
	var out []int64
	for _, id := range s.sortedIDs(model) {
		if matches(id, s.records[model][id], domain) {
			out = append(out, id)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out
}

func (s *Server) project(model string, id int64, fields []string) xmlrpc.Value {
	rec := s.records[model][id]
	members := []xmlrpc.Member{{Name: "id", Value: xmlrpc.Int(id)}}
	if len(fields) == 0 {
		return xmlrpc.Struct(append(members, rec...)...)
	}
	for _, f := range fields {
		if f == "id" {
			continue
		}
		v, ok := lookup(rec, f)
		if !ok {
			v = xmlrpc.Bool(false)
		}
		members = append(members, xmlrpc.Member{Name: f, Value: v})
	}
	return xmlrpc.Struct(members...)
}

func matches(id int64, rec []xmlrpc.Member, domain xmlrpc.Value) bool {
	for _, term := range domain.Items() {
		parts := term.Items()
		if len(parts) != 3 {
			// "&" is implicit; other operators are not supported.
			continue
		}
		field, _ := parts[0].AsString()
		op, _ := parts[1].AsString()
		want := parts[2]

		var got xmlrpc.Value
		if field == "id" {
			got = xmlrpc.Int(id)
		} else {
			v, ok := lookup(rec, field)
			if !ok {
				v = xmlrpc.Bool(false)
			}
			got = v
		}
		if !compare(got, op, want) {
			return false
		}
	}
	return true
}

func compare(got xmlrpc.Value, op string, want xmlrpc.Value) bool {
	switch op {
	case "=":
		return xmlrpc.Equal(got, want) || scalar(got) == scalar(want)
	case "!=":
		return !(xmlrpc.Equal(got, want) || scalar(got) == scalar(want))
	case "=ilike", "ilike":
		g, w := strings.ToLower(scalar(got)), strings.ToLower(scalar(want))
		if op == "=ilike" {
			return g == w
		}
		return strings.Contains(g, w)
	case "in":
		for _, item := range want.Items() {
			if scalar(item) == scalar(got) {
				return true
			}
		}
		return false
	case "<", "<=", ">", ">=":
		c := order(got, want)
		switch op {
		case "<":
			return c < 0
		case "<=":
			return c <= 0
		case ">":
			return c > 0
		default:
			return c >= 0
		}
	}
	return false
}

func order(a, b xmlrpc.Value) int {
	if x, ok := a.AsDouble(); ok {
		if y, ok := b.AsDouble(); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(scalar(a), scalar(b))
}

func scalar(v xmlrpc.Value) string {
	switch v.Kind() {
	case xmlrpc.KindInt:
		n, _ := v.AsInt()
		return strconv.FormatInt(n, 10)
	case xmlrpc.KindString:
		s, _ := v.AsString()
		return s
	case xmlrpc.KindBool:
		b, _ := v.AsBool()
		return strconv.FormatBool(b)
	case xmlrpc.KindDateTime:
		t, _ := v.AsTime()
		return t.UTC().Format("2006-01-02 15:04:05")
	}
	return v.String()
}

func lookup(rec []xmlrpc.Member, name string) (xmlrpc.Value, bool) {
	for _, m := range rec {
		if m.Name == name {
			return m.Value, true
		}
	}
	return xmlrpc.Value{}, false
}

func merge(rec, updates []xmlrpc.Member) []xmlrpc.Member {
	out := append([]xmlrpc.Member(nil), rec...)
	for _, u := range updates {
		replaced := false
		for i := range out {
			if out[i].Name == u.Name {
				out[i].Value = u.Value
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, u)
		}
	}
	return out
}
