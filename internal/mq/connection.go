package mq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Config — параметры подключения к RabbitMQ.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	VHost    string
}

// URL собирает AMQP URI из параметров.
func (c Config) URL() string {
	uri := amqp.URI{
		Scheme:   "amqp",
		Host:     c.Host,
		Port:     c.Port,
		Username: c.User,
		Password: c.Password,
		Vhost:    c.VHost,
	}
	if uri.Host == "" {
		uri.Host = "localhost"
	}
	if uri.Port == 0 {
		uri.Port = 5672
	}
	if uri.Vhost == "" {
		uri.Vhost = "/"
	}
	return uri.String()
}

// Connection — обёртка над AMQP соединением с автоматическим reconnect.
//
// Особенности:
// - Автоматическое переподключение при разрыве
// - Поколение соединения: delivery tag прошлого поколения недействителен
// - Graceful shutdown
type Connection struct {
	url    string
	logger *slog.Logger

	mu         sync.RWMutex
	conn       *amqp.Connection
	channel    *amqp.Channel
	generation uint64

	closed   bool
	closedCh chan struct{}
}

// NewConnection создаёт новое соединение с RabbitMQ.
func NewConnection(url string, logger *slog.Logger) (*Connection, error) {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Connection{
		url:      url,
		logger:   logger,
		closedCh: make(chan struct{}),
	}

	if err := c.connect(); err != nil {
		return nil, err
	}

	// Запускаем горутину для мониторинга соединения
	go c.watchConnection()

	return c, nil
}

// connect устанавливает соединение и открывает канал.
func (c *Connection) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	c.conn = conn
	c.channel = ch
	c.generation++

	c.logger.Info("connected to RabbitMQ", "generation", c.generation)

	return nil
}

// watchConnection следит за соединением и каналом и переподключается при разрыве.
func (c *Connection) watchConnection() {
	for {
		c.mu.RLock()
		if c.closed {
			c.mu.RUnlock()
			return
		}
		conn, ch := c.conn, c.channel
		c.mu.RUnlock()

		if conn == nil || ch == nil {
			time.Sleep(time.Second)
			continue
		}

		notifyConn := conn.NotifyClose(make(chan *amqp.Error, 1))
		notifyChan := ch.NotifyClose(make(chan *amqp.Error, 1))

		select {
		case <-c.closedCh:
			return
		case err := <-notifyConn:
			if err != nil {
				c.logger.Warn("connection closed", "error", err)
			}
		case err := <-notifyChan:
			if err != nil {
				c.logger.Warn("channel closed", "error", err)
			}
			// Канал закрыт брокером: соединение пересоздаётся целиком,
			// чтобы сменилось поколение.
			conn.Close()
		}

		// Переподключаемся с экспоненциальной задержкой
		c.reconnect()
	}
}

// reconnect пытается переподключиться с экспоненциальной задержкой.
func (c *Connection) reconnect() {
	delay := time.Second

	for {
		c.mu.RLock()
		if c.closed {
			c.mu.RUnlock()
			return
		}
		c.mu.RUnlock()

		c.logger.Info("attempting to reconnect", "delay", delay)
		time.Sleep(delay)

		if err := c.connect(); err != nil {
			c.logger.Warn("reconnect failed", "error", err)
			// Увеличиваем задержку (максимум 30 секунд)
			delay = min(delay*2, 30*time.Second)
			continue
		}

		c.logger.Info("reconnected to RabbitMQ")
		return
	}
}

// Channel возвращает текущий AMQP канал и его поколение.
func (c *Connection) Channel() (*amqp.Channel, uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.channel == nil || c.channel.IsClosed() {
		return nil, c.generation
	}
	return c.channel, c.generation
}

// Close закрывает соединение.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	close(c.closedCh)

	var errs []error

	if c.channel != nil && !c.channel.IsClosed() {
		if err := c.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
	}

	if c.conn != nil && !c.conn.IsClosed() {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}

	if len(errs) > 0 {
		return errs[0]
	}

	c.logger.Info("connection closed")
	return nil
}

// IsConnected проверяет, установлено ли соединение.
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.conn == nil {
		return false
	}

	return !c.conn.IsClosed()
}

// WithChannel выполняет функцию с текущим каналом.
func (c *Connection) WithChannel(_ context.Context, fn func(ch *amqp.Channel) error) error {
	ch, _ := c.Channel()
	if ch == nil {
		return ErrNotConnected
	}

	return fn(ch)
}

// WithTempChannel выполняет функцию на отдельном канале и закрывает его.
//
// Для операций, после ошибки которых брокер закрывает канал
// (passive declare несуществующей очереди).
func (c *Connection) WithTempChannel(_ context.Context, fn func(ch *amqp.Channel) error) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		return ErrNotConnected
	}

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer func() {
		if !ch.IsClosed() {
			ch.Close()
		}
	}()

	return fn(ch)
}
