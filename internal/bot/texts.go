package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"slide-master/internal/domain"
	"slide-master/internal/usecase"
)

type textKey int

const (
	textWelcome textKey = iota
	textBalance
	textUnlimited
	textReferral
	textReferralBonus
	textAskCount
	textWait
	textDone
	textNoBalance
	textBusy
	textFailed
	textTopicExpired
	textAnomaly
	textSlides
)

var texts = map[string]map[textKey]string{
	"uz": {
		textWelcome:       "✨ Slide Master AI\n\nMavzuni yozing, men taqdimot tayyorlab beraman.",
		textBalance:       "👤 ID: %s\n💰 Balans: %d",
		textUnlimited:     "👤 ID: %s\n👑 VIP: cheksiz",
		textReferral:      "🎁 Taklif havolangiz:\n%s",
		textReferralBonus: "🎉 Do'stingiz qo'shildi! Balansingizga +%d.",
		textAskCount:      "📝 Mavzu: %s\n\nNechta slayd kerak?",
		textWait:          "🧠 AI ishlamoqda, kuting...",
		textDone:          "✅ Tayyor!",
		textNoBalance:     "⚠️ Balans yetarli emas!",
		textBusy:          "⏳ Oldingi taqdimot hali tayyorlanmoqda.",
		textFailed:        "❌ Xatolik yuz berdi, qaytadan urinib ko'ring.",
		textTopicExpired:  "⌛ Mavzu topilmadi, uni qaytadan yuboring.",
		textAnomaly:       "ℹ️ Taqdimot yuborildi, lekin balansdan yechib bo'lmadi. Balans: %d.",
		textSlides:        "slayd",
	},
	"ru": {
		textWelcome:       "✨ Slide Master AI\n\nНапишите тему, и я подготовлю презентацию.",
		textBalance:       "👤 ID: %s\n💰 Баланс: %d",
		textUnlimited:     "👤 ID: %s\n👑 VIP: безлимит",
		textReferral:      "🎁 Ваша ссылка:\n%s",
		textReferralBonus: "🎉 По вашей ссылке пришёл друг! Баланс +%d.",
		textAskCount:      "📝 Тема: %s\n\nСколько слайдов нужно?",
		textWait:          "🧠 AI работает...",
		textDone:          "✅ Готово!",
		textNoBalance:     "⚠️ Недостаточно баланса!",
		textBusy:          "⏳ Предыдущая презентация ещё готовится.",
		textFailed:        "❌ Произошла ошибка, попробуйте ещё раз.",
		textTopicExpired:  "⌛ Тема не найдена, отправьте её заново.",
		textAnomaly:       "ℹ️ Презентация отправлена, но списать с баланса не удалось. Баланс: %d.",
		textSlides:        "слайдов",
	},
	"en": {
		textWelcome:       "✨ Slide Master AI\n\nSend me a topic and I will build a presentation.",
		textBalance:       "👤 ID: %s\n💰 Balance: %d",
		textUnlimited:     "👤 ID: %s\n👑 VIP: unlimited",
		textReferral:      "🎁 Your invite link:\n%s",
		textReferralBonus: "🎉 A friend joined with your link! Balance +%d.",
		textAskCount:      "📝 Topic: %s\n\nHow many slides?",
		textWait:          "🧠 AI is processing...",
		textDone:          "✅ Done!",
		textNoBalance:     "⚠️ Insufficient balance!",
		textBusy:          "⏳ Your previous deck is still being prepared.",
		textFailed:        "❌ Something went wrong, please try again.",
		textTopicExpired:  "⌛ Topic not found, please send it again.",
		textAnomaly:       "ℹ️ Your deck was delivered but the charge could not be applied. Balance: %d.",
		textSlides:        "slides",
	},
}

func text(lang string, key textKey) string {
	if t, ok := texts[usecase.NormalizeLanguage(lang)][key]; ok {
		return t
	}
	return texts[usecase.DefaultLanguage][key]
}

func textf(lang string, key textKey, args ...any) string {
	return fmt.Sprintf(text(lang, key), args...)
}

// Caption is the delivery caption: the done marker, the topic and the slide
// count.
func Caption(lang string, d domain.Deck) string {
	var b strings.Builder
	b.WriteString(text(lang, textDone))
	if topic := strings.TrimSpace(d.Topic); topic != "" {
		b.WriteString("\n📝 ")
		b.WriteString(topic)
	}
	if n := len(d.Slides); n > 0 {
		b.WriteString("\n🖼 ")
		b.WriteString(strconv.Itoa(n))
		b.WriteString(" ")
		b.WriteString(text(lang, textSlides))
	}
	return b.String()
}

// failureNotice maps an engine error to the single notice shown for its kind.
// Cancelled jobs get no notice.
func failureNotice(lang string, err error) (string, bool) {
	var ue *usecase.Error
	if errors.As(err, &ue) && ue.Code == usecase.ErrorInternal && ue.Reason == "canceled" {
		return "", false
	}
	switch usecase.CodeOf(err) {
	case usecase.ErrorInsufficientCredit:
		return text(lang, textNoBalance), true
	case usecase.ErrorInProgress:
		return text(lang, textBusy), true
	}
	return text(lang, textFailed), true
}
