package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/3Eeeecho/go-chunkupload/client"
	"github.com/3Eeeecho/go-chunkupload/internal/pkg/utils"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "uploadctl",
		Usage: "上传文件到分片上传服务",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Value:   "http://localhost:8080",
				Usage:   "服务地址",
				EnvVars: []string{"UPLOADCTL_SERVER"},
			},
			&cli.StringFlag{
				Name:    "token",
				Usage:   "Bearer Token，服务端未开启鉴权时可省略",
				EnvVars: []string{"UPLOADCTL_TOKEN"},
			},
			&cli.IntFlag{Name: "retries", Value: client.DefaultMaxRetries, Usage: "单个请求的最大重试次数"},
		},
		Commands: []*cli.Command{
			{
				Name:      "upload",
				Usage:     "分片上传一个文件",
				ArgsUsage: "<file>",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "chunk-size", Value: client.DefaultChunkSize, Usage: "分片大小（字节）"},
					&cli.IntFlag{Name: "parallel", Value: client.DefaultParallelism, Usage: "并发上传的分片数"},
				},
				Action: uploadAction,
			},
			{
				Name:      "progress",
				Usage:     "查询上传进度",
				ArgsUsage: "<upload_id>",
				Action:    progressAction,
			},
			{
				Name:      "cancel",
				Usage:     "取消上传并删除已上传的分片",
				ArgsUsage: "<upload_id>",
				Action:    cancelAction,
			},
			{
				Name:  "token",
				Usage: "用服务端的 jwt.secret_key 签发一个 Token",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "secret", Required: true, Usage: "签名密钥，与服务端 jwt.secret_key 一致", EnvVars: []string{"GO_CHUNK_UPLOAD_JWT_SECRET_KEY"}},
					&cli.StringFlag{Name: "issuer", Value: "go-chunkupload", Usage: "签发者，需与服务端 jwt.issuer 一致"},
					&cli.StringFlag{Name: "subject", Value: "uploadctl", Usage: "Token 的 sub"},
					&cli.DurationFlag{Name: "ttl", Value: 24 * time.Hour, Usage: "有效期"},
				},
				Action: tokenAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// newClient 用全局参数创建客户端
func newClient(c *cli.Context, opts ...client.Option) *client.Client {
	opts = append(opts,
		client.WithToken(c.String("token")),
		client.WithMaxRetries(uint64(c.Int("retries"))),
	)
	return client.New(c.String("server"), opts...)
}

func requireArg(c *cli.Context, name string) (string, error) {
	if c.NArg() != 1 {
		return "", cli.Exit(fmt.Sprintf("usage: uploadctl %s %s", c.Command.Name, name), 2)
	}
	return c.Args().First(), nil
}

func uploadAction(c *cli.Context) error {
	path, err := requireArg(c, "<file>")
	if err != nil {
		return err
	}

	var done atomic.Int32
	uc := newClient(c,
		client.WithChunkSize(c.Int64("chunk-size")),
		client.WithParallelism(c.Int("parallel")),
		client.WithProgress(func(r client.ChunkResult) {
			// 服务端返回的进度受并发影响可能乱序，这里只统计本地完成数
			n := done.Add(1)
			fmt.Fprintf(os.Stderr, "\r%d/%d chunks", n, r.TotalChunks)
		}),
	)
	res, err := uc.UploadFile(c.Context, path)
	fmt.Fprintln(os.Stderr)
	if errors.Is(err, client.ErrCompleteOutcomeUnknown) {
		// 会话保留，服务端若未完成合并，会话过期后由后台清理
		return cli.Exit(err.Error()+"\n合并请求未收到响应，文件可能已上传成功", 3)
	}
	if err != nil {
		return err
	}
	return printJSON(res)
}

func progressAction(c *cli.Context) error {
	id, err := requireArg(c, "<upload_id>")
	if err != nil {
		return err
	}
	res, err := newClient(c).Progress(c.Context, id)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func cancelAction(c *cli.Context) error {
	id, err := requireArg(c, "<upload_id>")
	if err != nil {
		return err
	}
	if err := newClient(c).Cancel(c.Context, id); err != nil {
		return err
	}
	fmt.Println("cancelled", id)
	return nil
}

func tokenAction(c *cli.Context) error {
	token, err := utils.GenerateToken(c.String("subject"), c.String("secret"), c.String("issuer"), c.Duration("ttl"))
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
