package replicate

import (
	"context"
	"fmt"
	"os"

	repgo "github.com/replicate/replicate-go"
)

// Job is the provider-neutral view of one inference task. The generation
// service and the predictions passthrough both consume this shape instead of
// the SDK's prediction type.
type Job struct {
	ID     string
	Status string
	Output interface{} // string | []string | map with "output"/"urls", see FirstOutputURL
	Error  string
}

type Client struct {
	client *repgo.Client
	token  string
}

func New(token string) (*Client, error) {
	if token == "" {
		token = os.Getenv("REPLICATE_API_TOKEN")
	}
	cl, err := repgo.NewClient(repgo.WithToken(token))
	if err != nil {
		return nil, err
	}
	return &Client{client: cl, token: token}, nil
}

// Create submits a prediction. identifier e.g. "black-forest-labs/flux-kontext-pro".
func (c *Client) Create(ctx context.Context, identifier string, input map[string]interface{}) (*Job, error) {
	pred, err := c.client.CreatePrediction(ctx, identifier, repgo.PredictionInput(input), nil, false)
	if err != nil {
		return nil, err
	}
	return fromPrediction(pred), nil
}

// Get fetches the current state of a prediction by ID.
func (c *Client) Get(ctx context.Context, id string) (*Job, error) {
	pred, err := c.client.GetPrediction(ctx, id)
	if err != nil {
		return nil, err
	}
	return fromPrediction(pred), nil
}

// Cancel stops a running prediction on Replicate so it doesn't stay pending.
func (c *Client) Cancel(ctx context.Context, id string) error {
	_, err := c.client.CancelPrediction(ctx, id)
	return err
}

func fromPrediction(p *repgo.Prediction) *Job {
	j := &Job{ID: p.ID, Status: string(p.Status), Output: p.Output}
	if p.Error != nil {
		if s, ok := p.Error.(string); ok {
			j.Error = s
		} else {
			j.Error = fmt.Sprintf("%v", p.Error)
		}
	}
	return j
}
