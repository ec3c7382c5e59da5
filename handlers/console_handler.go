package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/Perceptus-Labs/perceptus-object-detector/models"
	"github.com/Perceptus-Labs/perceptus-object-detector/utils"
	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"go.uber.org/zap"
)

const (
	consoleTitle    = "物体判別アプリ"
	consoleSubtitle = "写真を撮るかギャラリーから選んで物体を識別します"
)

// LineReader is satisfied by *readline.Instance.
type LineReader interface {
	Readline() (string, error)
}

// ConsoleScreen renders the detector screen in a terminal. It holds no
// session state of its own.
type ConsoleScreen struct {
	in  LineReader
	out io.Writer
	mu  sync.Mutex
}

func NewConsoleScreen(in LineReader, out io.Writer) *ConsoleScreen {
	return &ConsoleScreen{in: in, out: out}
}

func (s *ConsoleScreen) Alert(alert models.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	color.New(color.FgRed, color.Bold).Fprintf(s.out, "[%s] ", alert.Title)
	fmt.Fprintln(s.out, alert.Message)
}

// Run reads actions until quit, EOF or ctx is done.
func (s *ConsoleScreen) Run(ctx context.Context, ctrl *WorkflowController) error {
	ctrl.Subscribe(s.render)

	s.mu.Lock()
	color.New(color.Bold).Fprintln(s.out, consoleTitle)
	fmt.Fprintln(s.out, consoleSubtitle)
	s.mu.Unlock()
	s.printMenu(ctrl.State(), ctrl.CanAnalyze())

	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := s.in.Readline()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, readline.ErrInterrupt) {
				return nil
			}
			return err
		}

		state := ctrl.State()
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "":
			continue
		case "1", "camera", "photo":
			ctrl.AcquireFromCamera(ctx)
		case "2", "gallery":
			ctrl.AcquireFromGallery(ctx)
		case "3", "analyze":
			if !ctrl.CanAnalyze() {
				s.println("解析できる画像がありません。")
				break
			}
			if err := ctrl.Analyze(ctx); err != nil {
				ctrl.Logger.Warn("Analyze rejected", zap.Error(err))
			}
		case "4", "reset":
			if !state.CanReset() {
				s.println("リセットする内容がありません。")
				break
			}
			ctrl.Reset()
		case "s", "state":
			s.render(state)
		case "q", "quit", "exit":
			return nil
		default:
			s.println("不明なコマンドです: " + line)
		}
		s.printMenu(ctrl.State(), ctrl.CanAnalyze())
	}
}

// ChooseFromGallery is the terminal gallery picker. An empty line dismisses it.
func (s *ConsoleScreen) ChooseFromGallery(ctx context.Context, items []utils.GalleryItem) (string, error) {
	if len(items) == 0 {
		s.println("ギャラリーに画像がありません。")
		return "", nil
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"#", "ファイル", "更新日時"})
	for i, item := range items {
		tw.AppendRow(table.Row{i + 1, item.Name, item.ModTime.Format("2006-01-02 15:04")})
	}
	s.println(tw.Render())

	for {
		s.println("番号を入力してください (空欄でキャンセル):")
		if ctx.Err() != nil {
			return "", nil
		}
		line, err := s.in.Readline()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, readline.ErrInterrupt) {
				return "", nil
			}
			return "", err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			return "", nil
		}
		n, err := strconv.Atoi(line)
		if err != nil || n < 1 || n > len(items) {
			s.println(fmt.Sprintf("1から%dの番号を入力してください。", len(items)))
			continue
		}
		return items[n-1].Name, nil
	}
}

func (s *ConsoleScreen) render(state models.SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state.IsAnalyzing {
		color.New(color.FgBlue).Fprintln(s.out, "解析中...")
		return
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendRow(table.Row{"画像", valueOrDash(state.SelectedImage)})
	tw.AppendRow(table.Row{"解析結果:", valueOrDash(state.AnalysisResult)})
	fmt.Fprintln(s.out, tw.Render())
}

func (s *ConsoleScreen) printMenu(state models.SessionState, canAnalyze bool) {
	actions := []string{"1) 📷 写真を撮る", "2) 🖼️ ギャラリーから選ぶ"}
	if canAnalyze {
		actions = append(actions, "3) 🔍 解析する")
	}
	if state.CanReset() {
		actions = append(actions, "4) 🔄 もう一度")
	}
	actions = append(actions, "q) 終了")
	s.println(strings.Join(actions, "  "))
}

func (s *ConsoleScreen) println(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.out, line)
}

func valueOrDash(v string) string {
	if v == "" {
		return "-"
	}
	return v
}
