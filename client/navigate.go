package client

// Navigator receives the forced-logout signal: the one path where the client
// navigates the user away on its own, after an authenticated request got 401
// and the refresh also failed. Host applications plug in whatever "go to the
// login screen" means for them.
type Navigator interface {
	RedirectToLogin()
}

// NavigatorFunc adapts a plain function to the Navigator interface.
type NavigatorFunc func()

func (f NavigatorFunc) RedirectToLogin() { f() }

type nopNavigator struct{}

func (nopNavigator) RedirectToLogin() {}
