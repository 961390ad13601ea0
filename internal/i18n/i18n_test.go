package i18n

import (
	"strings"
	"testing"

	"advisorai/pkg/domain"
)

func TestApologyPerLanguage(t *testing.T) {
	if got := Apology(domain.LangZH); got != "抱歉，检索实时信息时出现错误。" {
		t.Fatalf("zh apology = %q", got)
	}
	if got := Apology(domain.LangEN); got != "Sorry, an error occurred while searching for real-time information." {
		t.Fatalf("en apology = %q", got)
	}
}

func TestTopicsCatalog(t *testing.T) {
	zh := Topics(domain.LangZH)
	en := Topics(domain.LangEN)
	if len(zh) != 8 || len(en) != 8 {
		t.Fatalf("topic counts = %d/%d, want 8/8", len(zh), len(en))
	}
	for i := range zh {
		if zh[i].ID != en[i].ID {
			t.Fatalf("topic %d: ids differ across languages: %s vs %s", i, zh[i].ID, en[i].ID)
		}
	}
	topic, ok := TopicByID("flights", domain.LangZH)
	if !ok || topic.Title != "机票咨询" {
		t.Fatalf("flights topic = %+v %v", topic, ok)
	}
	if _, ok := TopicByID("nope", domain.LangEN); ok {
		t.Fatal("unknown topic should not resolve")
	}
}

func TestSystemInstructionMentionsMarkers(t *testing.T) {
	for _, lang := range []domain.Language{domain.LangZH, domain.LangEN} {
		instruction := SystemInstruction(lang)
		for _, marker := range []string{"[STEP:", "[CHART_DATA:", "[SUGGEST:", "[OPTION:"} {
			if !strings.Contains(instruction, marker) {
				t.Fatalf("%s instruction missing %s", lang, marker)
			}
		}
	}
}
