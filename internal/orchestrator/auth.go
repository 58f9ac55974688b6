package orchestrator

import (
	"context"
	"errors"
	"fmt"
)

// ErrAuthFailed is the fatal sentinel for login-form or
// post-login-confirmation failures (spec §7 AuthError).
var ErrAuthFailed = errors.New("orchestrator: authentication failed")

// ErrDomContract is the sentinel for a missing required selector (spec
// §7 DomContractError).
var ErrDomContract = errors.New("orchestrator: required page element not found")

const loginFormSelector = `input[name="username"]`

// authenticate detects whether a login form is present and, if so,
// submits Credentials and waits for post-login confirmation. The
// target site's actual login DOM is an external collaborator (spec §1
// scope); this method only enforces the observable contract: either no
// login form is shown (already authenticated) or the form accepts the
// given credentials within the confirmation deadline.
func (o *Orchestrator) authenticate(ctx context.Context, creds Credentials) error {
	tctx, cancel := context.WithTimeout(ctx, LoginDetectionTimeout)
	defer cancel()

	if err := o.driver.WaitForSelector(tctx, loginFormSelector, LoginDetectionTimeout); err != nil {
		// No login form within the detection window: already
		// authenticated (e.g. a persisted session cookie).
		return nil
	}

	if err := o.driver.Evaluate(ctx, fillLoginScript(creds), nil); err != nil {
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}

	confirmCtx, confirmCancel := context.WithTimeout(ctx, PostLoginConfirmTimeout)
	defer confirmCancel()
	if err := o.driver.WaitForSelector(confirmCtx, selManagerRadio, PostLoginConfirmTimeout); err != nil {
		return fmt.Errorf("%w: post-login confirmation timed out", ErrAuthFailed)
	}

	return nil
}

func fillLoginScript(creds Credentials) string {
	return fmt.Sprintf(`
(() => {
  const u = document.querySelector('input[name="username"]');
  const p = document.querySelector('input[name="password"]');
  if (u) u.value = %q;
  if (p) p.value = %q;
  const form = document.querySelector('form');
  if (form) form.requestSubmit ? form.requestSubmit() : form.submit();
})();
`, creds.Username, creds.Password)
}

// selectManager clicks the manager radio item whose text exactly
// matches cfg.Manager (spec §6 DOM contract).
func (o *Orchestrator) selectManager(ctx context.Context, manager string) error {
	if err := o.driver.WaitForSelector(ctx, selManagerRadio, LoginDetectionTimeout); err != nil {
		return fmt.Errorf("%w: manager radio not found: %v", ErrDomContract, err)
	}

	var clicked bool
	if err := o.driver.Evaluate(ctx, selectManagerScript(manager), &clicked); err != nil {
		return fmt.Errorf("%w: %v", ErrDomContract, err)
	}
	if !clicked {
		return fmt.Errorf("%w: manager %q not found among radio items", ErrDomContract, manager)
	}
	return nil
}

func selectManagerScript(manager string) string {
	return fmt.Sprintf(`
(() => {
  const items = document.querySelectorAll(%q);
  for (const el of items) {
    if (el.textContent.trim() === %q) { el.click(); return true; }
  }
  return false;
})();
`, selManagerRadio, manager)
}

// loadFarmList waits for the farm-list anchors on the current page and
// extracts the set of farm anchors (spec §4.6); it does not navigate. The manager selection step above has
// already filtered the list server-side; this read confirms and parses
// the DOM.
func (o *Orchestrator) loadFarmList(ctx context.Context, manager string) ([]FarmLink, error) {
	if err := o.driver.WaitForSelector(ctx, selFarmListLink, NavigationTimeout); err != nil {
		return nil, fmt.Errorf("%w: farm list not found: %v", ErrDomContract, err)
	}

	html, err := o.driver.OuterHTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: reading farm list html: %v", ErrDomContract, err)
	}

	links, err := ParseFarmList(html)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing farm list: %v", ErrDomContract, err)
	}
	if len(links) == 0 {
		return nil, fmt.Errorf("%w: no farm anchors matched", ErrDomContract)
	}
	return links, nil
}
