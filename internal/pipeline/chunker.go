package pipeline

import (
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"docweave-go/internal/config"
	"docweave-go/pkg/log"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// Splitter 按 token 窗口切分文本，窗口之间保留 Overlap 个 token 的重叠。
// token 使用 cl100k_base 编码计数。每个切块都是输入文本的连续子串。
type Splitter struct {
	size      int
	overlap   int
	minLength int
	tokenize  func(text string) []span
}

// Chunker 组合了父、子两级切块器。
type Chunker struct {
	parent *Splitter
	child  *Splitter
}

// NewSplitter 根据配置创建切块器，非法参数会被修正为可用值。
func NewSplitter(cfg config.SplitterConfig) *Splitter {
	size := cfg.Size
	if size <= 0 {
		size = 300
	}
	overlap := cfg.Overlap
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return &Splitter{size: size, overlap: overlap, minLength: cfg.MinLength, tokenize: defaultTokenizer()}
}

// NewChunker 创建父子两级切块器。
func NewChunker(cfg config.ChunkingConfig) *Chunker {
	return &Chunker{parent: NewSplitter(cfg.Parent), child: NewSplitter(cfg.Child)}
}

// SplitParent 把一页文本切分为父块。
func (c *Chunker) SplitParent(text string) []string {
	return c.parent.Split(text)
}

// SplitChild 把一个父块切分为子块。
func (c *Chunker) SplitChild(parent string) []string {
	return c.child.Split(parent)
}

type span struct{ start, end int }

// Split 切分文本。空白输入返回 nil；非空输入至少返回一个切块。
// 短于 minLength（按字符计）的片段会并入前一个切块。
func (s *Splitter) Split(text string) []string {
	tokens := s.tokenize(text)
	if len(tokens) == 0 {
		return nil
	}

	var chunks []span
	start := 0
	for start < len(tokens) {
		end := start + s.size
		if end > len(tokens) {
			end = len(tokens)
		}
		cut := end
		if end < len(tokens) {
			cut = s.sentenceCut(text, tokens, start, end)
		}

		piece := trimSpan(text, span{start: tokens[start].start, end: tokens[cut-1].end})
		switch {
		case piece.start >= piece.end:
			// 纯空白窗口
		case len(chunks) > 0 && utf8.RuneCountInString(text[piece.start:piece.end]) < s.minLength:
			last := &chunks[len(chunks)-1]
			if piece.end > last.end {
				last.end = piece.end
			}
		default:
			chunks = append(chunks, piece)
		}

		if cut >= len(tokens) {
			break
		}
		next := cut - s.overlap
		if next <= start {
			next = cut
		}
		start = next
	}

	if len(chunks) == 0 {
		return nil
	}
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, text[c.start:c.end])
	}
	return out
}

// sentenceCut 在窗口后半段中寻找最后一个以句末标点结尾的 token，返回切分位置（不含）。
// 找不到时返回窗口末尾。
func (s *Splitter) sentenceCut(text string, tokens []span, start, end int) int {
	floor := start + s.size/2
	if floor <= start {
		floor = start + 1
	}
	for i := end - 1; i >= floor; i-- {
		if endsSentence(text, tokens[i]) {
			return i + 1
		}
	}
	return end
}

func endsSentence(text string, tok span) bool {
	// 换行也是句子边界
	if tok.end < len(text) && text[tok.end] == '\n' {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:tok.end])
	return strings.ContainsRune(".!?。！？\n", r)
}

func trimSpan(text string, sp span) span {
	for sp.start < sp.end {
		r, n := utf8.DecodeRuneInString(text[sp.start:sp.end])
		if !unicode.IsSpace(r) {
			break
		}
		sp.start += n
	}
	for sp.end > sp.start {
		r, n := utf8.DecodeLastRuneInString(text[sp.start:sp.end])
		if !unicode.IsSpace(r) {
			break
		}
		sp.end -= n
	}
	return sp
}

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// defaultTokenizer 返回 cl100k_base 分词器；编码表加载失败时退回按词切分。
func defaultTokenizer() func(string) []span {
	encodingOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			log.Warnf("[Chunker] 加载 cl100k_base 编码失败，改为按词切分: %v", err)
			return
		}
		encoding = enc
	})
	if encoding == nil {
		return wordTokens
	}
	return bpeTokens
}

// bpeTokens 返回每个 BPE token 在 text 中的字节区间。
// 一个多字节字符被拆成多个 token 时，后续 token 并入前一个，保证区间落在字符边界上。
func bpeTokens(text string) []span {
	// 文档里出现的 <|endoftext|> 等特殊标记按普通 token 计数
	ids := encoding.Encode(text, []string{"all"}, nil)
	tokens := make([]span, 0, len(ids))
	pos := 0
	for _, id := range ids {
		n := len(encoding.Decode([]int{id}))
		if n == 0 {
			continue
		}
		end := pos + n
		if end > len(text) {
			end = len(text)
		}
		if len(tokens) > 0 && !utf8.RuneStart(text[pos]) {
			tokens[len(tokens)-1].end = end
		} else {
			tokens = append(tokens, span{start: pos, end: end})
		}
		pos = end
		if pos >= len(text) {
			break
		}
	}
	if pos != len(text) {
		return wordTokens(text)
	}
	return tokens
}

// maxWordRunes 是按词切分时单个 token 的最大字符数，更长的词按字符窗口拆开。
const maxWordRunes = 16

// wordTokens 按空白切词。中日韩文字没有空格分隔，每个字单独算一个 token。
func wordTokens(text string) []span {
	var tokens []span
	start, runes := -1, 0
	flush := func(end int) {
		if start >= 0 {
			tokens = append(tokens, span{start: start, end: end})
			start, runes = -1, 0
		}
	}
	for i, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush(i)
		case isCJK(r):
			flush(i)
			tokens = append(tokens, span{start: i, end: i + utf8.RuneLen(r)})
		default:
			if runes == maxWordRunes {
				flush(i)
			}
			if start < 0 {
				start = i
			}
			runes++
		}
	}
	flush(len(text))
	return tokens
}

func isCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}
