package classifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"

	"github.com/latamwire/news-crawler/pkg/utils"
)

// Model is the subset of llms.Model the gate needs
type Model interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// Observer receives one notification per TryClassify outcome.
// err is nil on success.
type Observer interface {
	ObserveClassifierCall(err error, elapsed time.Duration)
}

// Gate asks the remote model which page sections introduce article listings,
// never exceeding the quota and never waiting on a call longer than timeout.
type Gate struct {
	model    Model
	quota    *Quota
	timeout  time.Duration
	observer Observer
	log      *logrus.Entry
}

// NewGate creates a gate. A nil model yields a gate that always declines with
// utils.ErrClassifierDisabled.
func NewGate(model Model, quota *Quota, timeout time.Duration, observer Observer, log *logrus.Entry) *Gate {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Gate{model: model, quota: quota, timeout: timeout, observer: observer, log: log}
}

// TryClassify returns the 0-based indices of the titles the model selected.
// Any error means "no selection"; all errors wrap utils.ErrClassifier except
// a cancellation of ctx itself. Exactly one remote call is made per granted
// slot, without retry.
func (g *Gate) TryClassify(ctx context.Context, titles []string) ([]int, error) {
	if g == nil || g.model == nil {
		return nil, utils.ErrClassifierDisabled
	}
	if len(titles) == 0 {
		return nil, fmt.Errorf("%w: no section titles", utils.ErrClassifierFailed)
	}

	if err := g.quota.Reserve(ctx); err != nil {
		if !errors.Is(err, utils.ErrQuotaExhausted) {
			err = fmt.Errorf("%w: waiting for quota: %w", utils.ErrClassifierFailed, err)
		}
		g.observe(err, 0)
		return nil, err
	}

	start := time.Now()
	reply, err := g.call(ctx, BuildPrompt(titles))
	elapsed := time.Since(start)
	if err != nil {
		g.observe(err, elapsed)
		return nil, err
	}

	selected, err := ParseSelection(reply, len(titles))
	g.observe(err, elapsed)
	if err != nil {
		return nil, err
	}
	g.log.WithFields(logrus.Fields{
		"sections": len(titles), "selected": len(selected), "elapsed": elapsed.Round(time.Millisecond),
	}).Debug("Classifier selected sections")
	return selected, nil
}

type callResult struct {
	text string
	err  error
}

// call runs the model request in its own goroutine so a client that ignores
// context cancellation still cannot hold the caller past the timeout.
func (g *Gate) call(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	done := make(chan callResult, 1)
	go func() {
		resp, err := g.model.GenerateContent(callCtx,
			[]llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)},
			llms.WithTemperature(0),
		)
		if err != nil {
			done <- callResult{err: err}
			return
		}
		if resp == nil || len(resp.Choices) == 0 {
			done <- callResult{err: errors.New("empty response")}
			return
		}
		done <- callResult{text: resp.Choices[0].Content}
	}()

	select {
	case res := <-done:
		if res.err == nil {
			return res.text, nil
		}
		if callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return "", fmt.Errorf("%w after %s", utils.ErrClassifierTimeout, g.timeout)
		}
		return "", fmt.Errorf("%w: %w", utils.ErrClassifierFailed, res.err)
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %w", utils.ErrClassifierFailed, ctx.Err())
		}
		return "", fmt.Errorf("%w after %s", utils.ErrClassifierTimeout, g.timeout)
	}
}

func (g *Gate) observe(err error, elapsed time.Duration) {
	if g.observer != nil {
		g.observer.ObserveClassifierCall(err, elapsed)
	}
}
