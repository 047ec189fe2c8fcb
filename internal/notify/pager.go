// Package notify is the best-effort staff paging side channel. Every
// call returns a boolean the caller may log; a paging failure never
// becomes an order-flow error.
package notify

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"venue-system/internal/domain"
	"venue-system/internal/metrics"
)

const (
	pagesExchange = "venue.pages"
	sharedKey     = "page.all"
	sharedQueue   = "venue.pages.all"
)

type Pager interface {
	// Page sends a plain-text page to the channel configured for the
	// role. An empty role targets the shared all-staff channel.
	Page(ctx context.Context, role domain.Role, text string) bool
}

type AMQPPager struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	channels map[string]string // role -> routing key
	lg       *zap.Logger
	met      *metrics.Metrics

	pub func(ctx context.Context, key, text string) error
}

func Dial(url string, channels map[string]string, lg *zap.Logger, met *metrics.Metrics) (*AMQPPager, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := ch.ExchangeDeclare(pagesExchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	if _, err := ch.QueueDeclare(sharedQueue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	if err := ch.QueueBind(sharedQueue, sharedKey, pagesExchange, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	p := &AMQPPager{conn: conn, ch: ch, channels: channels, lg: lg, met: met}
	p.pub = p.publish
	return p, nil
}

func (p *AMQPPager) Close() {
	if p == nil {
		return
	}
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

func (p *AMQPPager) Page(ctx context.Context, role domain.Role, text string) bool {
	key, ok := p.channels[string(role)]
	if role != "" && ok {
		err := p.pub(ctx, key, text)
		if err == nil {
			p.met.PagesTotal.WithLabelValues("success").Inc()
			return true
		}
		p.lg.Warn("page_failed", zap.String("role", string(role)), zap.Error(err))
		// One retry against the shared channel, then give up silently.
	}
	if err := p.pub(ctx, sharedKey, text); err != nil {
		p.lg.Warn("page_failed", zap.String("role", "all"), zap.Error(err))
		p.met.PagesTotal.WithLabelValues("fail").Inc()
		return false
	}
	p.met.PagesTotal.WithLabelValues("success").Inc()
	return true
}

func (p *AMQPPager) publish(ctx context.Context, key, text string) error {
	return p.ch.PublishWithContext(ctx, pagesExchange, key, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "text/plain",
		Timestamp:    time.Now().UTC(),
		Body:         []byte(text),
	})
}

// Disabled satisfies Pager when no broker is configured.
type Disabled struct{}

func (Disabled) Page(context.Context, domain.Role, string) bool { return false }
