package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/3Eeeecho/go-chunkupload/internal/pkg/logger"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// RabbitMQClient 封装了 RabbitMQ 的连接和通道
type RabbitMQClient struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	mu      sync.Mutex // amqp.Channel 不支持并发 Publish
}

// NewRabbitMQClient 创建一个新的 RabbitMQ 客户端实例
func NewRabbitMQClient(amqpURL string) (*RabbitMQClient, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	return &RabbitMQClient{
		conn:    conn,
		channel: ch,
	}, nil
}

// DeclareQueue 声明一个队列
func (c *RabbitMQClient) DeclareQueue(queueName string) (amqp.Queue, error) {
	return c.channel.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
}

// Publish a message to a specific queue
func (c *RabbitMQClient) Publish(queueName string, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel.Publish(
		"",        // exchange (default)
		queueName, // routing key (queue name)
		false,     // mandatory
		false,     // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent, // make message persistent
		},
	)
}

// PublishJSON 序列化后发布
func (c *RabbitMQClient) PublishJSON(queueName string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return c.Publish(queueName, body)
}

// Consume 注册消费者，ctx 结束或通道关闭时停止分发
func (c *RabbitMQClient) Consume(ctx context.Context, queueName string, handler func(msg amqp.Delivery)) error {
	msgs, err := c.channel.Consume(
		queueName,
		"",    // consumer
		false, // auto-ack (we will manually ack)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to register a consumer: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					logger.Warn("RabbitMQ delivery channel closed", zap.String("queue", queueName))
					return
				}
				handler(msg)
			}
		}
	}()

	logger.Info("Waiting for messages", zap.String("queue", queueName))
	return nil
}

// Close the channel and connection
func (c *RabbitMQClient) Close() {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}
