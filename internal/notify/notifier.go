package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"signal_bot/internal/models"
	"signal_bot/internal/state"
)

const outboxSize = 64

// sender — то, что нам нужно от BotAPI.
type sender interface {
	Send(c tgbot.Chattable) (tgbot.Message, error)
}

// Telegram — алерты оператору + команды /status, /positions, /stats.
// Отправка асинхронная: переполненный outbox отбрасывает сообщение.
type Telegram struct {
	bot    sender
	api    *tgbot.BotAPI
	chatID int64
	store  *state.Store
	log    *zap.Logger

	outbox chan string
	once   sync.Once
	wg     sync.WaitGroup
}

func NewTelegram(token string, chatID int64, store *state.Store, log *zap.Logger) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	t := newTelegram(b, chatID, store, log)
	t.api = b
	return t, nil
}

func newTelegram(bot sender, chatID int64, store *state.Store, log *zap.Logger) *Telegram {
	return &Telegram{
		bot:    bot,
		chatID: chatID,
		store:  store,
		log:    log.Named("telegram"),
		outbox: make(chan string, outboxSize),
	}
}

func (t *Telegram) Send(msg string) {
	if t == nil || t.chatID == 0 {
		return
	}
	select {
	case t.outbox <- msg:
	default:
		t.log.Warn("[TG] outbox full, message dropped", zap.String("msg", msg))
	}
}

func (t *Telegram) Sendf(format string, args ...any) { t.Send(fmt.Sprintf(format, args...)) }

func (t *Telegram) deliver(msg string) {
	if _, err := t.bot.Send(tgbot.NewMessage(t.chatID, msg)); err != nil {
		t.log.Warn("[TG] send failed", zap.Error(err))
	}
}

// Start: отправитель outbox и (если есть BotAPI) long-polling команд.
func (t *Telegram) Start(ctx context.Context) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-t.outbox:
				t.deliver(msg)
			}
		}
	}()

	if t.api == nil {
		return
	}

	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message"}
	updates := t.api.GetUpdatesChan(u)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case upd, ok := <-updates:
				if !ok {
					return
				}
				if upd.Message == nil || upd.Message.Chat == nil || upd.Message.Chat.ID != t.chatID {
					continue
				}
				if upd.Message.IsCommand() {
					t.handleCommand(upd.Message.Command())
				}
			}
		}
	}()
}

// Stop ждёт выхода горутин. ctx Start должен быть уже отменён.
func (t *Telegram) Stop() {
	t.once.Do(func() {
		if t.api != nil {
			t.api.StopReceivingUpdates()
		}
	})
	t.wg.Wait()
}

func (t *Telegram) handleCommand(cmd string) {
	switch cmd {
	case "status", "start":
		t.deliver(FormatStatus(t.store))
	case "positions":
		t.deliver(FormatPositions(t.store.Positions()))
	case "stats":
		t.deliver(FormatStats(t.store))
	default:
		t.deliver("Команды: /status /positions /stats")
	}
}

// FormatStatus — одна строка статуса, баланс и PnL.
func FormatStatus(st *state.Store) string {
	balance := "unknown"
	if b, ok := st.Balance(); ok {
		balance = fmt.Sprintf("$%.2f", b)
	}
	return fmt.Sprintf("⚡ %s\n💰 Balance: %s\n📈 PnL: $%.2f\n📊 Positions: %d",
		st.Status(), balance, st.Float(state.KeyPnL), len(st.Positions()))
}

// FormatPositions — открытые позиции по алфавиту.
func FormatPositions(positions map[string]models.Position) string {
	if len(positions) == 0 {
		return "📭 Открытых позиций нет"
	}
	symbols := make([]string, 0, len(positions))
	for s := range positions {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	var b strings.Builder
	b.WriteString("📊 Открытые позиции:\n")
	for _, s := range symbols {
		p := positions[s]
		fmt.Fprintf(&b, "- %s [%s] size=%g @ %.4f pnl=%.2f\n", s, p.Side, p.Size, p.EntryPrice, p.UnrealizedPnL)
	}
	return b.String()
}

func FormatStats(st *state.Store) string {
	up := time.Duration(0)
	if start, ok := st.Get(state.PerfStartTime, nil).(time.Time); ok {
		up = time.Since(start).Truncate(time.Second)
	}
	return fmt.Sprintf("🎯 Signals: %d\n✅ Trades: %d\n⚡ Speed: %.1f sym/s\n🏆 Win rate: %.0f%%\n⏱ Uptime: %s",
		st.Int(state.MetricSignalsFound), st.Int(state.MetricTradesExecuted),
		st.Float(state.MetricAnalysisSpeed), st.Float(state.MetricWinRate), up)
}

// Log — нотифайер без Telegram: всё уходит в zap.
type Log struct {
	log *zap.Logger
}

func NewLog(log *zap.Logger) *Log { return &Log{log: log.Named("notify")} }

func (l *Log) Send(msg string)                  { l.log.Info("[NOTIFY] " + msg) }
func (l *Log) Sendf(format string, args ...any) { l.Send(fmt.Sprintf(format, args...)) }
