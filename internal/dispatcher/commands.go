package dispatcher

import (
	"sort"
	"strconv"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/ivanoskov/expense_bot/internal/reply"
)

// command команда верхнего уровня
type command int

const (
	cmdNone command = iota
	cmdHelp
	cmdRefresh
	cmdSummary
	cmdBreakdown
	cmdDelete
	cmdModify
)

// commandLiterals точные тексты команд; кнопки отправляют русские варианты
var commandLiterals = map[string]command{
	reply.CmdHelp: cmdHelp,
	"help":        cmdHelp,
	"?":           cmdHelp,
	"/help":       cmdHelp,
	"/start":      cmdHelp,

	reply.CmdRefresh: cmdRefresh,
	"reload":         cmdRefresh,
	"/reload":        cmdRefresh,

	reply.CmdSummary: cmdSummary,
	"Этот месяц":     cmdSummary,
	"/summary":       cmdSummary,

	reply.CmdBreakdown: cmdBreakdown,
	"/breakdown":       cmdBreakdown,

	reply.CmdDelete: cmdDelete,
	"/delete":       cmdDelete,

	reply.CmdModify: cmdModify,
	"/edit":         cmdModify,
}

var cancelLiterals = map[string]bool{
	reply.CmdCancel: true,
	"cancel":        true,
	"/cancel":       true,
}

// normalizeCommand убирает параметры и суффикс @BotName у команд со слэшем
func normalizeCommand(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return text
	}
	if i := strings.IndexAny(text, " \n"); i >= 0 {
		text = text[:i]
	}
	if i := strings.IndexByte(text, '@'); i >= 0 {
		text = text[:i]
	}
	return text
}

func parseCommand(text string) command {
	return commandLiterals[normalizeCommand(text)]
}

func isCancel(text string) bool {
	return cancelLiterals[normalizeCommand(text)]
}

// amountSuffixes обозначения валюты, которые пользователь может дописать к сумме; длинные раньше коротких
var amountSuffixes = []string{"руб.", "руб", "р.", "р", "₽", "rub", "rur", "yen", "円", "¥", "$"}

var amountCleaner = strings.NewReplacer(",", "", " ", "", "\u00a0", "", "_", "")

// parseAmount разбирает новую сумму: разделители тысяч и обозначение валюты допускаются
func parseAmount(text string) (int64, bool) {
	s := strings.ToLower(strings.TrimSpace(text))
	for _, suffix := range amountSuffixes {
		if strings.HasSuffix(s, suffix) {
			s = strings.TrimSuffix(s, suffix)
			break
		}
	}
	s = strings.TrimPrefix(strings.TrimPrefix(s, "$"), "¥")
	s = amountCleaner.Replace(s)

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// suggest ищет в options значение, похожее на опечатку value
func suggest(value string, options []string) string {
	type candidate struct {
		option   string
		distance int
		index    int
	}

	var found []candidate
	for i, option := range options {
		d := fuzzy.RankMatchNormalizedFold(value, option)
		if d < 0 {
			// "Foood" не является подпоследовательностью "Food", но обратное верно
			d = fuzzy.RankMatchNormalizedFold(option, value)
		}
		if d >= 0 {
			found = append(found, candidate{option: option, distance: d, index: i})
		}
	}
	if len(found) == 0 {
		return ""
	}

	sort.Slice(found, func(i, j int) bool {
		if found[i].distance != found[j].distance {
			return found[i].distance < found[j].distance
		}
		return found[i].index < found[j].index
	})
	return found[0].option
}
