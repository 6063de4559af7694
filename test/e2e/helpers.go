//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cloo-solutions/citadoc/internal/api/handlers"
	"github.com/cloo-solutions/citadoc/internal/extract"
	"github.com/cloo-solutions/citadoc/internal/repository"
	"github.com/cloo-solutions/citadoc/internal/server"
	"github.com/cloo-solutions/citadoc/internal/service"
	"github.com/cloo-solutions/citadoc/internal/storage"
	"github.com/cloo-solutions/citadoc/internal/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
)

const embeddingDimensions = 1536

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T            *testing.T
	Ctx          context.Context
	PostgresC    *testutil.PostgresContainer
	RustFSC      *testutil.RustFSContainer
	Pool         *pgxpool.Pool
	ServerURL    string
	ServerCloser func()
	S3Client     *storage.S3Client
	BinaryDir    string
	HTTPClient   *http.Client
}

// SetupE2EEnv creates a full E2E test environment with containers and server
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	s3C := testutil.NewRustFSContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        s3C.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     testutil.RustFSCredential,
		SecretAccessKey: testutil.RustFSCredential,
		Bucket:          "test-documents",
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create S3 client: %v", err)
	}
	if err := s3Client.EnsureBucket(ctx); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}

	serverURL, serverCloser := startServer(t, pool, s3Client, port)

	return &E2ETestEnv{
		T:            t,
		Ctx:          ctx,
		PostgresC:    pgC,
		RustFSC:      s3C,
		Pool:         pool,
		ServerURL:    serverURL,
		ServerCloser: serverCloser,
		S3Client:     s3Client,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.ServerCloser != nil {
		e.ServerCloser()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.RustFSC != nil {
		e.RustFSC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
	if e.BinaryDir != "" {
		os.RemoveAll(e.BinaryDir)
	}
}

// BuildCLI builds the citadoc client binary
func (e *E2ETestEnv) BuildCLI() {
	tmpDir, err := os.MkdirTemp("", "citadoc-e2e-*")
	if err != nil {
		e.T.Fatalf("failed to create temp dir: %v", err)
	}
	e.BinaryDir = tmpDir

	cmd := exec.Command("go", "build", "-o", filepath.Join(tmpDir, "citadoc"), "./cmd/citadoc")
	cmd.Dir = "../.."
	if out, err := cmd.CombinedOutput(); err != nil {
		e.T.Fatalf("failed to build citadoc: %v\n%s", err, out)
	}
}

// RunCLI runs the citadoc CLI against the test server
func (e *E2ETestEnv) RunCLI(workDir string, args ...string) (string, error) {
	cmd := exec.Command(filepath.Join(e.BinaryDir, "citadoc"), args...)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("CITADOC_API_URL=%s", e.ServerURL),
		fmt.Sprintf("XDG_CONFIG_HOME=%s", workDir),
	)
	out, err := cmd.Output()
	return string(out), err
}

// APIResponse represents a standard API response
type APIResponse struct {
	StatusCode int
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error,omitempty"`
}

// Get performs a GET request
func (e *E2ETestEnv) Get(path string) (*APIResponse, error) {
	return e.doJSON(http.MethodGet, path, nil)
}

// Post performs a POST request
func (e *E2ETestEnv) Post(path string, body interface{}) (*APIResponse, error) {
	return e.doJSON(http.MethodPost, path, body)
}

// Delete performs a DELETE request
func (e *E2ETestEnv) Delete(path string) (*APIResponse, error) {
	return e.doJSON(http.MethodDelete, path, nil)
}

// Upload sends content as the multipart "file" field.
func (e *E2ETestEnv) Upload(method, path, filename string, content []byte) (*APIResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(content); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequest(method, e.ServerURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return e.send(req)
}

func (e *E2ETestEnv) doJSON(method, path string, body interface{}) (*APIResponse, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, e.ServerURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return e.send(req)
}

// send returns the decoded envelope for every status; callers assert on
// StatusCode.
func (e *E2ETestEnv) send(req *http.Request) (*APIResponse, error) {
	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	apiResp := APIResponse{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}
	apiResp.StatusCode = resp.StatusCode
	return &apiResp, nil
}

// DownloadFile downloads a file from a presigned URL
func (e *E2ETestEnv) DownloadFile(downloadURL string) ([]byte, error) {
	resp, err := e.HTTPClient.Get(downloadURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// SHA256Sum calculates SHA256 hash of data
func SHA256Sum(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// startServer wires the real repositories, storage and services behind the
// router, with deterministic stand-ins for the model providers.
func startServer(t *testing.T, pool *pgxpool.Pool, s3Client *storage.S3Client, port int) (string, func()) {
	chunker, err := service.NewChunker(service.ChunkConfig{
		MaxChars:       300,
		OverlapChars:   40,
		HeadingPattern: service.DefaultHeadingPattern,
	})
	if err != nil {
		t.Fatalf("failed to create chunker: %v", err)
	}

	docRepo := repository.NewDocumentRepository(pool)
	chunkRepo := repository.NewChunkRepository(pool)
	convRepo := repository.NewConversationRepository(pool)
	txRunner := repository.NewTxRunner(pool)
	embedder := hashEmbedder{}

	ingestSvc := service.NewIngestService(
		docRepo, chunkRepo, txRunner, s3Client,
		extract.NewExtractor(), chunker, embedder,
		service.DefaultIngestConfig(),
	)
	chatSvc := service.NewChatService(
		convRepo, txRunner,
		service.NewRetriever(embedder, chunkRepo, 10*time.Second),
		service.NewContextAssembler(6),
		citingGenerator{},
		service.NewCitationResolver(service.DefaultSnippetConfig()),
		service.ChatConfig{TopK: 3, ProviderTimeout: 10 * time.Second},
	)

	router := server.NewRouter(server.RouterConfig{
		DocumentHandler: handlers.NewDocumentHandler(ingestSvc),
		ChatHandler:     handlers.NewChatHandler(chatSvc),
		HealthCheck:     pool.Ping,
		MaxUploadBytes:  service.DefaultIngestConfig().MaxFileSize,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.Logf("server error: %v", err)
		}
	}()

	serverURL := fmt.Sprintf("http://localhost:%d", port)
	waitForServer(t, serverURL, 10*time.Second)

	return serverURL, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

// hashEmbedder maps each lowercased word to a bucket, so texts sharing words
// have a high cosine similarity.
type hashEmbedder struct{}

func (hashEmbedder) GenerateEmbedding(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, embeddingDimensions)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,;:!?\"'()[]#")
		if word == "" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(word))
		vec[h.Sum32()%embeddingDimensions]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}

// citingGenerator answers with the first source's opening line and cites it.
type citingGenerator struct{}

func (citingGenerator) Generate(_ context.Context, _, user string) (string, error) {
	idx := strings.Index(user, "\n[1] (doc=")
	if idx < 0 {
		return service.NotFoundAnswer, nil
	}
	lines := strings.SplitN(user[idx+1:], "\n", 3)
	if len(lines) < 2 {
		return service.NotFoundAnswer, nil
	}
	return fmt.Sprintf("%s [1]", strings.TrimSpace(lines[1])), nil
}

func waitForServer(t *testing.T, url string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server did not start within %v", timeout)
}

func getFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
