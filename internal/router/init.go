package router

import (
	"github.com/oksasatya/driver-desk/internal/application"
	"github.com/oksasatya/driver-desk/internal/container"
	"github.com/oksasatya/driver-desk/internal/infrastructure/elastic"
	pginfra "github.com/oksasatya/driver-desk/internal/infrastructure/postgres"
	handlers "github.com/oksasatya/driver-desk/internal/interface/http"
	"github.com/oksasatya/driver-desk/internal/interface/httperr"
	"github.com/oksasatya/driver-desk/internal/interface/middleware"
	"github.com/oksasatya/driver-desk/internal/router/modules"
	"github.com/oksasatya/driver-desk/pkg/helpers"
)

type AuthModuleDeps struct {
	Service *application.AuthService
	Handler *handlers.AuthHandler
}

type UserModuleDeps struct {
	Service *application.AccountService
	Handler *handlers.UserHandler
}

type UploadModuleDeps struct {
	Service *application.CalculationService
	Handler *handlers.UploadHandler
}

// driverIndex returns the Elasticsearch directory, or nil when search is off.
func driverIndex() application.AccountIndex {
	es := container.GetES()
	if es == nil {
		return nil
	}
	return elastic.NewDriverIndex(es, container.GetConfig().ESDriversIndex)
}

func errorWriter() httperr.Writer {
	return httperr.New(container.GetLogger(), container.GetConfig().IsDevelopment())
}

func buildAuthDeps(accounts *pginfra.AccountRepository, index application.AccountIndex) AuthModuleDeps {
	cfg := container.GetConfig()
	service := application.NewAuthService(
		accounts,
		helpers.NewBcryptHasher(cfg.BcryptCost),
		container.GetJWT(),
		container.GetNotifier(),
		container.GetImages(),
		index,
		container.GetLogger(),
		application.AuthConfigFrom(cfg),
	)
	handler := handlers.NewAuthHandler(
		service,
		helpers.NewCookie(cfg.CookieDomain, cfg.CookieSecure),
		errorWriter(),
	)
	return AuthModuleDeps{Service: service, Handler: handler}
}

func buildUserDeps(accounts *pginfra.AccountRepository, index application.AccountIndex) UserModuleDeps {
	service := application.NewAccountService(accounts, index, container.GetLogger())
	return UserModuleDeps{Service: service, Handler: handlers.NewUserHandler(service, errorWriter())}
}

func buildUploadDeps() UploadModuleDeps {
	service := application.NewCalculationService(
		pginfra.NewCalculationRepository(container.GetPGPool()),
		container.GetLogger(),
	)
	return UploadModuleDeps{Service: service, Handler: handlers.NewUploadHandler(service, errorWriter())}
}

// InitModules initializes all application modules and registers them with the router registry
// This function should be called once during application startup to wire up all modules
func InitModules(r *Registry) {
	accounts := pginfra.NewAccountRepository(container.GetPGPool())
	index := driverIndex()

	authDeps := buildAuthDeps(accounts, index)
	container.SetAuthService(authDeps.Service)

	errs := errorWriter()
	protect := middleware.Protect(authDeps.Service, errs)

	r.Add(modules.NewAuthModule(authDeps.Handler, protect))
	r.Add(modules.NewUserModule(buildUserDeps(accounts, index).Handler, protect, errs))
	r.Add(modules.NewUploadModule(buildUploadDeps().Handler, protect, errs))
	if container.GetConfig().DebugMetricsEnabled {
		r.Add(modules.NewDebugModule(container.GetMetrics()))
	}
}
