package suratsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBasePath is where the server mounts the API unless configured otherwise.
const DefaultBasePath = "/api/surat"

// Client is a minimal surat HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults. baseURL includes the API base path.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:     baseURL,
		BearerToken: token,
		Timeout:     30 * time.Second,
	}
}

// Template is a selectable letter template.
type Template struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// Member is a team member row. Leaders are implicitly number 1.
type Member struct {
	ID         string `json:"id,omitempty"`
	RequestID  string `json:"surat_id,omitempty"`
	No         int    `json:"no,omitempty"`
	Name       string `json:"nama"`
	EmployeeID string `json:"nip,omitempty"`
	Rank       string `json:"pangkat_golongan,omitempty"`
	Department string `json:"prodi_fakultas,omitempty"`
}

// Request mirrors a stored letter request.
type Request struct {
	ID          string `json:"id"`
	TemplateKey string `json:"template_key"`
	UserID      string `json:"user_id"`
	Status      string `json:"status"`

	Judul           string `json:"judul,omitempty"`
	SumberPendanaan string `json:"sumber_pendanaan,omitempty"`
	Tahun           string `json:"tahun,omitempty"`

	KetuaNama       string `json:"ketua_nama,omitempty"`
	KetuaNIP        string `json:"ketua_nip,omitempty"`
	KetuaPangkatGol string `json:"ketua_pangkat_gol,omitempty"`
	KetuaProdiFak   string `json:"ketua_prodi_fak,omitempty"`
	SatuanKerja     string `json:"satuan_kerja,omitempty"`

	Penerima        string `json:"penerima,omitempty"`
	LokasiTujuan    string `json:"lokasi_tujuan,omitempty"`
	SkemaPengabdian string `json:"skema_pengabdian,omitempty"`
	Skema           string `json:"skema,omitempty"`

	TanggalMulai    string `json:"tanggal_mulai,omitempty"`
	TanggalAkhir    string `json:"tanggal_akhir,omitempty"`
	Lokasi          string `json:"lokasi,omitempty"`
	KabupatenLokasi string `json:"kabupaten_lokasi,omitempty"`
	TanggalSurat    string `json:"tanggal_surat,omitempty"`

	PenelitiPelaksana  string `json:"peneliti_pelaksana,omitempty"`
	Dana               string `json:"dana,omitempty"`
	DanaTerbilang      string `json:"dana_terbilang,omitempty"`
	PenelitiPengabdian string `json:"peneliti_pengabdian,omitempty"`
	TimPeneliti        string `json:"tim_peneliti,omitempty"`

	FileHasil string `json:"file_hasil,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`

	Anggota []Member `json:"anggota,omitempty"`
}

// Me describes the caller.
type Me struct {
	ID    string `json:"id"`
	Admin bool   `json:"admin"`
}

// ListOptions narrows request listings.
type ListOptions struct {
	TemplateKey string
	Status      string
	Query       string
	Limit       int
}

// Document is a rendered letter.
type Document struct {
	Filename    string
	ContentType string
	Body        []byte
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Templates lists the letter templates.
func (c *Client) Templates(ctx context.Context) ([]Template, error) {
	var resp []Template
	err := c.do(ctx, http.MethodGet, "templates", nil, &resp)
	return resp, err
}

// Submit creates a request. The request's ID, status and timestamps are
// ignored; the created request is returned with its members.
func (c *Client) Submit(ctx context.Context, req Request) (Request, error) {
	var resp Request
	err := c.do(ctx, http.MethodPost, "submit", req, &resp)
	return resp, err
}

// MySurat lists the caller's own requests.
func (c *Client) MySurat(ctx context.Context, opts ListOptions) ([]Request, error) {
	var resp []Request
	err := c.do(ctx, http.MethodGet, "my-surat"+opts.query(), nil, &resp)
	return resp, err
}

// Requests lists every request. Admin only.
func (c *Client) Requests(ctx context.Context, opts ListOptions) ([]Request, error) {
	var resp []Request
	err := c.do(ctx, http.MethodGet, "requests"+opts.query(), nil, &resp)
	return resp, err
}

// Get returns a request with its members.
func (c *Client) Get(ctx context.Context, id string) (Request, error) {
	var resp Request
	err := c.do(ctx, http.MethodGet, "requests/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// Complete uploads the result file and marks the request completed. Admin only.
func (c *Client) Complete(ctx context.Context, id, filename string, content []byte) (Request, error) {
	endpoint := "requests/" + url.PathEscape(id) + "/complete?filename=" + url.QueryEscape(filename)
	httpReq, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(content))
	if err != nil {
		return Request{}, err
	}
	httpReq.Header.Set("Content-Type", "application/octet-stream")
	var resp Request
	err = c.send(httpReq, &resp)
	return resp, err
}

// Reject marks the request rejected. Admin only.
func (c *Client) Reject(ctx context.Context, id string) (Request, error) {
	var resp Request
	err := c.do(ctx, http.MethodPost, "requests/"+url.PathEscape(id)+"/reject", nil, &resp)
	return resp, err
}

// Generate renders the request's letter.
func (c *Client) Generate(ctx context.Context, id string) (Document, error) {
	httpReq, err := c.newRequest(ctx, http.MethodGet, "generate/"+url.PathEscape(id), nil)
	if err != nil {
		return Document{}, err
	}
	resp, err := c.httpClient().Do(httpReq)
	if err != nil {
		return Document{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return Document{}, apiError(resp)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Document{}, err
	}
	doc := Document{ContentType: resp.Header.Get("Content-Type"), Body: body}
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		doc.Filename = params["filename"]
	}
	return doc, nil
}

// Me returns the caller's identity and admin flag.
func (c *Client) Me(ctx context.Context) (Me, error) {
	var resp Me
	err := c.do(ctx, http.MethodGet, "me", nil, &resp)
	return resp, err
}

func (o ListOptions) query() string {
	q := url.Values{}
	if o.TemplateKey != "" {
		q.Set("template_key", o.TemplateKey)
	}
	if o.Status != "" {
		q.Set("status", o.Status)
	}
	if o.Query != "" {
		q.Set("q", o.Query)
	}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
		reader = &buf
	}
	req, err := c.newRequest(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	return req, nil
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return apiError(resp)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func apiError(resp *http.Response) *APIError {
	b, _ := io.ReadAll(resp.Body)
	apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	var envelope struct {
		Error struct {
			Code    string         `json:"code"`
			Message string         `json:"message"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if json.Unmarshal(b, &envelope) == nil {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
		apiErr.Details = envelope.Error.Details
	}
	return apiErr
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	return c.HTTPClient
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
