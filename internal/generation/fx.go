package generation

import (
	"github.com/thinktestai/thinktest/internal/generation/domain"
	"github.com/thinktestai/thinktest/internal/generation/provider/anthropic"
	"github.com/thinktestai/thinktest/internal/generation/provider/gemini"
	"github.com/thinktestai/thinktest/internal/generation/provider/openai"
	"github.com/thinktestai/thinktest/internal/generation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("generation.service",
	fx.Provide(
		fx.Annotate(newOpenAI, fx.ResultTags(`group:"generation_providers"`)),
		fx.Annotate(newAnthropic, fx.ResultTags(`group:"generation_providers"`)),
		fx.Annotate(newGemini, fx.ResultTags(`group:"generation_providers"`)),
	),
	fx.Provide(service.New),
)

func newOpenAI() domain.Provider    { return openai.New() }
func newAnthropic() domain.Provider { return anthropic.New() }
func newGemini() domain.Provider    { return gemini.New("", nil) }
