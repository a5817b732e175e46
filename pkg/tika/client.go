// Package tika 提供了一个与 Apache Tika 服务器交互的客户端。
package tika

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"docweave-go/internal/config"
	"docweave-go/pkg/log"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

// Page 是解析得到的一页文本，Number 从 1 开始。
type Page struct {
	Number int
	Text   string
}

// Client 是 Tika 服务器的客户端。未配置 ServerURL 时退回到本地 PDF 解析。
type Client struct {
	serverURL string
	client    *http.Client
}

// NewClient 创建一个新的 Tika 客户端实例。
func NewClient(cfg config.TikaConfig) *Client {
	return &Client{
		serverURL: strings.TrimRight(cfg.ServerURL, "/"),
		client:    &http.Client{Timeout: cfg.Timeout},
	}
}

// ParseFile 解析文件并按页返回文本。没有可提取文本的页面会被跳过。
func (c *Client) ParseFile(ctx context.Context, path string) ([]Page, error) {
	if c.serverURL == "" {
		log.Infof("[TikaClient] 未配置 Tika 服务, 使用本地 PDF 解析: %s", filepath.Base(path))
		return parsePDFLocal(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开待解析文件失败: %w", err)
	}
	defer f.Close()

	return c.extractPages(ctx, f, filepath.Base(path))
}

// extractPages 请求 Tika 的 XHTML 输出，每个 <div class="page"> 对应一页。
func (c *Client) extractPages(ctx context.Context, body io.Reader, fileName string) ([]Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.serverURL+"/tika", body)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Accept", "text/html")
	req.Header.Set("Content-Type", detectMimeType(fileName))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("调用 Tika 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Tika 返回错误 [%d]: %s", resp.StatusCode, string(b))
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("解析 Tika XHTML 响应失败: %w", err)
	}
	return splitPages(doc), nil
}

func splitPages(doc *html.Node) []Page {
	var pageNodes []*html.Node
	var find func(*html.Node)
	find = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "div" && hasClass(n, "page") {
			pageNodes = append(pageNodes, n)
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			find(child)
		}
	}
	find(doc)

	// 非分页格式整体视为第 1 页
	if len(pageNodes) == 0 {
		pageNodes = []*html.Node{doc}
	}

	var pages []Page
	for i, n := range pageNodes {
		text := normalizeText(extractText(n))
		if text == "" {
			continue
		}
		pages = append(pages, Page{Number: i + 1, Text: text})
	}
	return pages
}

func hasClass(n *html.Node, class string) bool {
	for _, attr := range n.Attr {
		if attr.Key == "class" {
			for _, c := range strings.Fields(attr.Val) {
				if c == class {
					return true
				}
			}
		}
	}
	return false
}

// extractText 收集节点下的文本，块级元素之间以换行分隔。
func extractText(n *html.Node) string {
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		switch node.Type {
		case html.TextNode:
			buf.WriteString(node.Data)
		case html.ElementNode:
			if node.Data == "script" || node.Data == "style" || node.Data == "head" {
				return
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
		if node.Type == html.ElementNode {
			switch node.Data {
			case "p", "br", "div", "li", "h1", "h2", "h3", "h4", "h5", "h6", "tr":
				buf.WriteString("\n")
			}
		}
	}
	walk(n)
	return buf.String()
}

func parsePDFLocal(path string) ([]Page, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer file.Close()

	var pages []Page
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			log.Warnf("[TikaClient] 跳过无法解析的页面, page: %d, error: %v", i, err)
			continue
		}
		text = normalizeText(text)
		if text == "" {
			continue
		}
		pages = append(pages, Page{Number: i, Text: text})
	}
	return pages, nil
}

// normalizeText 清理控制字符并压缩行内空白，保留换行作为句子边界。
func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\x00", " ")
	text = strings.ToValidUTF8(text, "")
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// detectMimeType 根据文件扩展名判断 Content-Type
func detectMimeType(fileName string) string {
	ext := filepath.Ext(fileName)
	if ext == "" {
		return "application/octet-stream"
	}
	mimeType := mime.TypeByExtension(ext)
	if mimeType == "" {
		return "application/octet-stream"
	}
	return mimeType
}
