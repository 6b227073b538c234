// Package submitter — автомат BUILD → SIGN → SUBMIT с ограниченным числом попыток.
//
// Повторы идут только на отказы по шагу цены/объёма; каждая попытка отличается
// от всех предыдущих, поэтому цикл конечен. Наружу уходит только OrderResult.
package submitter

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"nado_bot/internal/errkind"
	"nado_bot/internal/increments"
	"nado_bot/internal/models"
	"nado_bot/internal/modules/nado_client/service"
	"nado_bot/internal/normalize"
	"nado_bot/internal/signer"
	"nado_bot/pkg/logger"
)

const DefaultMaxAttempts = 6

// Exchange — то, что автомату нужно от клиента биржи.
type Exchange interface {
	Network() models.Network
	Signer() signer.Signer
	MarketPrice(ctx context.Context, productID int64) (models.MarketPrice, error)
	PlaceOrder(ctx context.Context, productID int64, s signer.Signed) (string, error)
}

type Submitter struct {
	registry    *increments.Registry
	tracer      opentracing.Tracer
	classifier  *errkind.Classifier
	validate    *validator.Validate
	maxAttempts int
	now         func() time.Time
}

type Option func(*Submitter)

func WithMaxAttempts(n int) Option {
	return func(s *Submitter) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

func WithClassifier(c *errkind.Classifier) Option {
	return func(s *Submitter) { s.classifier = c }
}

func WithClock(now func() time.Time) Option {
	return func(s *Submitter) { s.now = now }
}

func New(registry *increments.Registry, tracer opentracing.Tracer, opts ...Option) *Submitter {
	if tracer == nil {
		tracer = opentracing.NoopTracer{}
	}
	s := &Submitter{
		registry:    registry,
		tracer:      tracer,
		classifier:  errkind.Default,
		validate:    validator.New(),
		maxAttempts: DefaultMaxAttempts,
		now:         time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Submitter) MaxAttempts() int { return s.maxAttempts }

func (s *Submitter) check(req models.OrderRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return errkind.Wrap(errkind.Validation, "Invalid order: "+err.Error(), err)
	}
	if !req.Size.IsPositive() {
		return errkind.New(errkind.Validation, "Order size must be positive.")
	}
	price, ok := req.Price.Take()
	if ok != nil || !price.IsPositive() {
		return errkind.New(errkind.Validation, "Order price must be positive.")
	}
	return nil
}

func failed(req models.OrderRequest, attempts int, err error) models.OrderResult {
	return models.OrderResult{
		ProductID: req.ProductID,
		Side:      req.Side,
		Size:      req.Size,
		Attempts:  attempts,
		Err:       err,
	}
}

// Submit — один логический вызов: до maxAttempts подписанных отправок.
func (s *Submitter) Submit(ctx context.Context, ex Exchange, req models.OrderRequest) models.OrderResult {
	if err := s.check(req); err != nil {
		return failed(req, 0, err)
	}
	network := ex.Network()
	s.registry.Warm(ctx, network, req.ProductID)

	price := req.Price.Unwrap()
	run := &attemptRun{
		sub:     s,
		ex:      ex,
		req:     req,
		network: network,
		price:   price,
		size:    req.Size,
		tried:   make(map[string]struct{}),
	}
	return run.loop(ctx)
}

// attemptRun — состояние одного вызова Submit.
type attemptRun struct {
	sub     *Submitter
	ex      Exchange
	req     models.OrderRequest
	network models.Network

	price decimal.Decimal
	size  decimal.Decimal

	tried    map[string]struct{}
	ladder   []decimal.Decimal
	ladderOn bool
	attempts int
	lastErr  error
}

func attemptKey(a normalize.Aligned) string {
	return a.PriceX18.String() + "/" + a.AmountX18.String()
}

// build выравнивает текущие цену/объём и отбрасывает уже опробованные варианты.
// При исчерпании вариантов возвращает ok=false.
func (r *attemptRun) build() (normalize.Aligned, bool, error) {
	for {
		inc := r.sub.registry.Get(r.network, r.req.ProductID)
		aligned, err := normalize.Order(r.price, r.size, r.req.Side, r.req.TimeInForce, inc)
		if err == nil {
			if _, dup := r.tried[attemptKey(aligned)]; !dup {
				return aligned, true, nil
			}
		}
		if !r.ladderOn || !r.nextLadderSize() {
			if err != nil {
				return normalize.Aligned{}, false, err
			}
			return normalize.Aligned{}, false, nil
		}
	}
}

func (r *attemptRun) nextLadderSize() bool {
	if len(r.ladder) == 0 {
		return false
	}
	r.size, r.ladder = r.ladder[0], r.ladder[1:]
	return true
}

func (r *attemptRun) startLadder() bool {
	if !r.ladderOn {
		r.ladderOn = true
		r.ladder = normalize.FallbackSizes(r.req.Size)
	}
	return r.nextLadderSize()
}

func (r *attemptRun) loop(ctx context.Context) models.OrderResult {
	log := logger.L().With(
		zap.String("network", r.network.String()),
		zap.Int64("product_id", r.req.ProductID),
		zap.String("side", string(r.req.Side)),
	)

	for r.attempts < r.sub.maxAttempts {
		if err := ctx.Err(); err != nil {
			return failed(r.req, r.attempts, errkind.Wrap(errkind.TransientNetwork, "Order cancelled.", err))
		}

		// BUILD
		aligned, ok, err := r.build()
		if err != nil {
			return failed(r.req, r.attempts, err)
		}
		if !ok {
			break
		}
		r.tried[attemptKey(aligned)] = struct{}{}
		r.attempts++

		log.Debug("order attempt",
			zap.Int("attempt", r.attempts),
			zap.String("price", aligned.Price.String()),
			zap.String("size", aligned.Size.String()),
		)

		digest, err := r.sub.attempt(ctx, r.ex, r.req, aligned, r.attempts)
		if err == nil {
			return models.OrderResult{
				Success:     true,
				OrderID:     digest,
				ProductID:   r.req.ProductID,
				Side:        r.req.Side,
				Size:        aligned.Size,
				FilledPrice: aligned.Price,
				Attempts:    r.attempts,
			}
		}

		var rej *service.RejectError
		if !errors.As(err, &rej) {
			if errkind.Of(err) == errkind.Generic {
				err = errkind.Wrap(errkind.TransientNetwork, "Exchange is unavailable, please try again later.", err)
			}
			log.Warn("order attempt failed", zap.Int("attempt", r.attempts), zap.Error(err))
			return failed(r.req, r.attempts, err)
		}

		classified := r.sub.classifier.Classify(rej.Text)
		r.lastErr = classified
		_, learned := r.sub.registry.LearnFromRejection(r.network, r.req.ProductID, rej.Text, r.req.Size)

		log.Warn("order rejected",
			zap.Int("attempt", r.attempts),
			zap.String("kind", string(classified.Kind)),
			zap.Bool("learned", learned),
			zap.String("reason", rej.Text),
		)

		if !classified.Kind.Retryable() && (classified.Kind != errkind.Generic || !learned) {
			return failed(r.req, r.attempts, classified)
		}
		if learned {
			// следующий BUILD возьмёт выученный шаг; ладдер как запасной путь
			if _, fresh, _ := r.build(); fresh {
				continue
			}
		}
		if classified.Kind == errkind.SizeIncrement {
			if r.startLadder() {
				continue
			}
		}
		return failed(r.req, r.attempts, classified)
	}

	err := r.lastErr
	if err == nil {
		err = errkind.New(errkind.Generic, "Order could not be placed.")
	}
	log.Warn("order attempts exhausted", zap.Int("attempts", r.attempts), zap.Error(err))
	return failed(r.req, r.attempts, err)
}

// attempt — SIGN + SUBMIT одной попытки, со своим nonce, expiration и span.
func (s *Submitter) attempt(ctx context.Context, ex Exchange, req models.OrderRequest, a normalize.Aligned, n int) (string, error) {
	span, ctx := opentracing.StartSpanFromContextWithTracer(ctx, s.tracer, "order.attempt")
	defer span.Finish()
	span.SetTag("product_id", req.ProductID)
	span.SetTag("attempt", n)
	span.SetTag("side", string(req.Side))

	now := s.now()
	order := signer.Order{
		PriceX18:   a.PriceX18,
		Amount:     a.AmountX18,
		Expiration: signer.Expiration(now, req.TimeInForce),
		Nonce:      signer.Nonce(now),
		Appendix:   signer.Appendix(req.TimeInForce, req.ReduceOnly),
	}
	signed, err := ex.Signer().SignOrder(req.ProductID, order)
	if err != nil {
		ext.Error.Set(span, true)
		return "", errkind.Wrap(errkind.FatalAccountState, "Could not sign the order.", err)
	}

	digest, err := ex.PlaceOrder(ctx, req.ProductID, signed)
	if err != nil {
		ext.Error.Set(span, true)
		span.SetTag("error.message", err.Error())
		return "", err
	}
	span.SetTag("digest", digest)
	return digest, nil
}
