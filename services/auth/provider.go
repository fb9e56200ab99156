package auth

import (
	"go.uber.org/fx"

	"github.com/keepintouch/backend/services/mail"
)

func ProvideAuthService() fx.Option {
	return fx.Options(
		fx.Provide(NewService),
		fx.Invoke(func(s *Service, sender mail.Sender) {
			s.SetMailSender(sender)
		}),
	)
}

var Module = ProvideAuthService()
