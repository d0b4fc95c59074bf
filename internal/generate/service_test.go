package generate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/2refocus/dogs-ai-sub000/internal/policy"
	"github.com/2refocus/dogs-ai-sub000/internal/replicate"
	"github.com/2refocus/dogs-ai-sub000/internal/store"
)

type fakeInference struct {
	createErr     error
	states        []replicate.Job // returned by Get in order; last repeats
	upscaleStates []replicate.Job
	createCalls   []string // model identifiers, in order
	inputs        []map[string]interface{}
	getCalls      int
	upscaleGets   int
	cancels       int
}

func (f *fakeInference) Create(ctx context.Context, model string, input map[string]interface{}) (*replicate.Job, error) {
	if f.createErr != nil && len(f.createCalls) == 0 {
		return nil, f.createErr
	}
	f.createCalls = append(f.createCalls, model)
	f.inputs = append(f.inputs, input)
	id := fmt.Sprintf("job-%d", len(f.createCalls))
	return &replicate.Job{ID: id, Status: "starting"}, nil
}

func (f *fakeInference) Get(ctx context.Context, id string) (*replicate.Job, error) {
	states := f.states
	calls := &f.getCalls
	if id == "job-2" && len(f.upscaleStates) > 0 {
		states = f.upscaleStates
		calls = &f.upscaleGets
	}
	i := *calls
	if i >= len(states) {
		i = len(states) - 1
	}
	*calls++
	j := states[i]
	j.ID = id
	return &j, nil
}

func (f *fakeInference) Cancel(ctx context.Context, id string) error {
	f.cancels++
	return nil
}

type fakeObjects struct {
	putErr  error
	objects map[string][]byte
}

func (f *fakeObjects) Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	if f.putErr != nil {
		return "", f.putErr
	}
	if f.objects == nil {
		f.objects = make(map[string][]byte)
	}
	b, _ := io.ReadAll(body)
	f.objects[key] = b
	return key, nil
}

func (f *fakeObjects) URL(key string) string { return "https://store.test/" + key }

type fakeRecords struct {
	insertErr error
	inserted  []*store.Portrait
}

func (f *fakeRecords) InsertPortrait(ctx context.Context, p *store.Portrait) (uuid.UUID, error) {
	if f.insertErr != nil {
		return uuid.Nil, f.insertErr
	}
	f.inserted = append(f.inserted, p)
	return p.ID, nil
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func failingHTTP() *http.Client {
	return &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})}
}

func servingHTTP(contentType string) *http.Client {
	return &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{contentType}},
			Body:       io.NopCloser(bytes.NewReader([]byte("image-bytes"))),
		}, nil
	})}
}

func fastOpts() Options {
	return Options{
		PollInterval:    time.Millisecond,
		SimpleTimeout:   200 * time.Millisecond,
		PipelineTimeout: 200 * time.Millisecond,
		UpscaleTimeout:  200 * time.Millisecond,
	}
}

func simpleRequest() *Request {
	return &Request{
		Image:      []byte("input"),
		Species:    "dog",
		StyleLabel: "Royal Portrait",
		CropRatio:  "4_5",
		Mode:       policy.ModeSimple,
		Tier:       policy.TierGuest,
		IsPublic:   true,
	}
}

func TestGenerateSucceedsAfterPolling(t *testing.T) {
	inf := &fakeInference{states: []replicate.Job{
		{Status: "processing"},
		{Status: "processing"},
		{Status: "succeeded", Output: []interface{}{"https://cdn/x.jpg"}},
	}}
	records := &fakeRecords{}
	svc := &Service{
		Inference: inf, Objects: &fakeObjects{}, Records: records,
		Models: Models{Simple: "base/model", HD: "hd/model", Upscale: "up/model"},
		Opts:   fastOpts(), HTTPClient: failingHTTP(),
	}
	res, err := svc.Generate(context.Background(), simpleRequest())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.OutputURL != "https://cdn/x.jpg" {
		t.Fatalf("output = %q", res.OutputURL)
	}
	if res.ModelUsed != "base/model" {
		t.Fatalf("model = %q", res.ModelUsed)
	}
	if len(inf.createCalls) != 1 {
		t.Fatalf("simple pipeline must not invoke the upscale stage: %v", inf.createCalls)
	}
	if inf.getCalls != 3 {
		t.Fatalf("poll count = %d, want 3", inf.getCalls)
	}
	if len(records.inserted) != 1 {
		t.Fatalf("record not persisted")
	}
	rec := records.inserted[0]
	if rec.OutputImageURL != "https://cdn/x.jpg" || rec.UserTier != "guest" || rec.PipelineMode != "simple" {
		t.Fatalf("record = %+v", rec)
	}
	if res.RecordID == uuid.Nil {
		t.Fatal("record id missing from result")
	}
}

func TestGenerateCreateRejectionFailsFast(t *testing.T) {
	inf := &fakeInference{createErr: errors.New("status 422: invalid input")}
	svc := &Service{
		Inference: inf, Objects: &fakeObjects{}, Records: &fakeRecords{},
		Models: Models{Simple: "base/model"},
		Opts:   fastOpts(), HTTPClient: failingHTTP(),
	}
	_, err := svc.Generate(context.Background(), simpleRequest())
	if !errors.Is(err, ErrCreate) {
		t.Fatalf("err = %v, want ErrCreate", err)
	}
	if inf.getCalls != 0 {
		t.Fatalf("no poll must happen after a create rejection, got %d", inf.getCalls)
	}
	if !strings.Contains(err.Error(), "422") {
		t.Fatalf("upstream detail not surfaced: %v", err)
	}
}

func TestGenerateArchivalSuccessReturnsOwnedURL(t *testing.T) {
	inf := &fakeInference{states: []replicate.Job{
		{Status: "succeeded", Output: "https://cdn/x.jpg"},
	}}
	objects := &fakeObjects{}
	svc := &Service{
		Inference: inf, Objects: objects, Records: &fakeRecords{},
		Models: Models{Simple: "base/model"},
		Opts:   fastOpts(), HTTPClient: servingHTTP("image/jpeg"),
	}
	res, err := svc.Generate(context.Background(), simpleRequest())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.HasPrefix(res.OutputURL, "https://store.test/portraits/") || !strings.HasSuffix(res.OutputURL, ".jpg") {
		t.Fatalf("output not archived into owned storage: %q", res.OutputURL)
	}
}

func TestGenerateArchivalFailureFallsBackToProviderURL(t *testing.T) {
	inf := &fakeInference{states: []replicate.Job{
		{Status: "succeeded", Output: map[string]interface{}{"urls": []interface{}{"https://cdn/x.jpg"}}},
	}}
	svc := &Service{
		Inference: inf, Objects: &fakeObjects{}, Records: &fakeRecords{},
		Models: Models{Simple: "base/model"},
		Opts:   fastOpts(), HTTPClient: failingHTTP(),
	}
	res, err := svc.Generate(context.Background(), simpleRequest())
	if err != nil {
		t.Fatalf("archival failure must not fail the request: %v", err)
	}
	if res.OutputURL != "https://cdn/x.jpg" {
		t.Fatalf("output = %q, want provider URL fallback", res.OutputURL)
	}
}

func TestGenerateUpstreamFailureSurfacesError(t *testing.T) {
	inf := &fakeInference{states: []replicate.Job{
		{Status: "processing"},
		{Status: "failed", Error: "NSFW content detected"},
	}}
	svc := &Service{
		Inference: inf, Objects: &fakeObjects{}, Records: &fakeRecords{},
		Models: Models{Simple: "base/model"},
		Opts:   fastOpts(), HTTPClient: failingHTTP(),
	}
	_, err := svc.Generate(context.Background(), simpleRequest())
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("err = %v, want ErrGenerationFailed", err)
	}
	if !strings.Contains(err.Error(), "NSFW content detected") {
		t.Fatalf("upstream error detail lost: %v", err)
	}
	if UserMessage(err) != "NSFW content detected" {
		t.Fatalf("UserMessage = %q", UserMessage(err))
	}
}

func TestGenerateSucceededWithoutOutputFails(t *testing.T) {
	inf := &fakeInference{states: []replicate.Job{
		{Status: "succeeded", Output: []interface{}{}},
	}}
	svc := &Service{
		Inference: inf, Objects: &fakeObjects{}, Records: &fakeRecords{},
		Models: Models{Simple: "base/model"},
		Opts:   fastOpts(), HTTPClient: failingHTTP(),
	}
	_, err := svc.Generate(context.Background(), simpleRequest())
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("err = %v, want ErrGenerationFailed", err)
	}
	if inf.getCalls != 1 {
		t.Fatalf("terminal state must not be re-polled, got %d fetches", inf.getCalls)
	}
}

func TestGenerateTimesOutInsteadOfHanging(t *testing.T) {
	inf := &fakeInference{states: []replicate.Job{{Status: "processing"}}}
	svc := &Service{
		Inference: inf, Objects: &fakeObjects{}, Records: &fakeRecords{},
		Models: Models{Simple: "base/model"},
		Opts: Options{
			PollInterval: time.Millisecond, SimpleTimeout: 30 * time.Millisecond,
			PipelineTimeout: 30 * time.Millisecond, UpscaleTimeout: 30 * time.Millisecond,
		},
		HTTPClient: failingHTTP(),
	}
	done := make(chan error, 1)
	go func() {
		_, err := svc.Generate(context.Background(), simpleRequest())
		done <- err
	}()
	select {
	case err := <-done:
		if !errors.Is(err, ErrTimeout) {
			t.Fatalf("err = %v, want ErrTimeout", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("poll loop hung past its deadline")
	}
	if inf.cancels == 0 {
		t.Fatal("remote job not cancelled on timeout")
	}
}

func TestGenerateUploadFailureIsFatal(t *testing.T) {
	svc := &Service{
		Inference: &fakeInference{}, Objects: &fakeObjects{putErr: errors.New("bucket gone")},
		Records: &fakeRecords{},
		Models:  Models{Simple: "base/model"},
		Opts:    fastOpts(), HTTPClient: failingHTTP(),
	}
	_, err := svc.Generate(context.Background(), simpleRequest())
	if !errors.Is(err, ErrUpload) {
		t.Fatalf("err = %v, want ErrUpload", err)
	}
}

func TestGenerateHybridRunsUpscaleAndFallsBackSilently(t *testing.T) {
	inf := &fakeInference{
		states:        []replicate.Job{{Status: "succeeded", Output: "https://cdn/base.jpg"}},
		upscaleStates: []replicate.Job{{Status: "failed", Error: "gpu oom"}},
	}
	records := &fakeRecords{}
	svc := &Service{
		Inference: inf, Objects: &fakeObjects{}, Records: records,
		Models: Models{Simple: "base/model", HD: "hd/model", Upscale: "up/model"},
		Opts:   fastOpts(), HTTPClient: failingHTTP(),
	}
	req := simpleRequest()
	req.Mode = policy.ModeHybrid
	req.Tier = policy.TierLoggedIn
	res, err := svc.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("upscale failure must fall back, not fail: %v", err)
	}
	if len(inf.createCalls) != 2 || inf.createCalls[1] != "up/model" {
		t.Fatalf("upscale stage not invoked: %v", inf.createCalls)
	}
	if inf.inputs[1]["scale"] != 2 {
		t.Fatalf("hybrid scale = %v, want 2", inf.inputs[1]["scale"])
	}
	if res.HighResURL != "" {
		t.Fatalf("failed upscale must not set high-res URL, got %q", res.HighResURL)
	}
	if res.OutputURL != "https://cdn/base.jpg" {
		t.Fatalf("output = %q", res.OutputURL)
	}
}

func TestGenerateMultimodelUses4xAndHDModel(t *testing.T) {
	inf := &fakeInference{
		states:        []replicate.Job{{Status: "succeeded", Output: "https://cdn/base.jpg"}},
		upscaleStates: []replicate.Job{{Status: "succeeded", Output: "https://cdn/big.jpg"}},
	}
	records := &fakeRecords{}
	svc := &Service{
		Inference: inf, Objects: &fakeObjects{}, Records: records,
		Models: Models{Simple: "base/model", HD: "hd/model", Upscale: "up/model"},
		Opts:   fastOpts(), HTTPClient: failingHTTP(),
	}
	req := simpleRequest()
	req.Mode = policy.ModeMultimodel
	req.Tier = policy.TierLoggedIn
	res, err := svc.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if inf.createCalls[0] != "hd/model" {
		t.Fatalf("multimodel base model = %q", inf.createCalls[0])
	}
	if inf.inputs[1]["scale"] != 4 {
		t.Fatalf("multimodel scale = %v, want 4", inf.inputs[1]["scale"])
	}
	if res.HighResURL != "https://cdn/big.jpg" {
		t.Fatalf("high-res = %q", res.HighResURL)
	}
	if records.inserted[0].HighResImageURL == nil {
		t.Fatal("high-res URL missing from record")
	}
}

func TestGeneratePersistFailureIsSwallowed(t *testing.T) {
	inf := &fakeInference{states: []replicate.Job{{Status: "succeeded", Output: "https://cdn/x.jpg"}}}
	svc := &Service{
		Inference: inf, Objects: &fakeObjects{}, Records: &fakeRecords{insertErr: errors.New("db down")},
		Models: Models{Simple: "base/model"},
		Opts:   fastOpts(), HTTPClient: failingHTTP(),
	}
	res, err := svc.Generate(context.Background(), simpleRequest())
	if err != nil {
		t.Fatalf("persist failure must not fail generation: %v", err)
	}
	if res.RecordID != uuid.Nil {
		t.Fatalf("record id should be nil on persist failure, got %s", res.RecordID)
	}
}

func TestGenerateCustomPromptPrecedence(t *testing.T) {
	inf := &fakeInference{states: []replicate.Job{{Status: "succeeded", Output: "https://cdn/x.jpg"}}}
	svc := &Service{
		Inference: inf, Objects: &fakeObjects{}, Records: &fakeRecords{},
		Models: Models{Simple: "base/model"},
		Opts:   fastOpts(), HTTPClient: failingHTTP(),
	}
	req := simpleRequest()
	req.CustomPrompt = "a pug in a spacesuit"
	res, err := svc.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.PromptText != "a pug in a spacesuit" {
		t.Fatalf("prompt = %q", res.PromptText)
	}
	if inf.inputs[0]["prompt"] != "a pug in a spacesuit" {
		t.Fatalf("provider input prompt = %v", inf.inputs[0]["prompt"])
	}
}
