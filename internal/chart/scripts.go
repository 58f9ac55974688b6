package chart

import "fmt"

// armLearningListenerScript arms an on-page key/click listener for the
// operator's confirm/skip decision (Design Notes §9: an explicit
// deadline replaces a coroutine-style page.pause()). It is parameterized
// by the planned RED/BLUE marker positions so each click the operator
// makes during the decision window is bound to the marker it falls
// nearest to, tracking the two corrections (first, last) independently
// rather than collapsing them into a single last-click point.
func armLearningListenerScript(p Plan) string {
	return fmt.Sprintf(`
(() => {
  window.__irrigationLearningDecision = null;
  window.__irrigationFirstClickX = null;
  window.__irrigationFirstClickY = null;
  window.__irrigationLastClickX = null;
  window.__irrigationLastClickY = null;
  const firstX = %f, firstY = %f, lastX = %f, lastY = %f;
  const onKey = (e) => {
    if (e.key === 'Enter') window.__irrigationLearningDecision = 'confirm';
    if (e.key === 'Escape') window.__irrigationLearningDecision = 'skip';
  };
  const onClick = (e) => {
    const dFirst = Math.hypot(e.clientX - firstX, e.clientY - firstY);
    const dLast = Math.hypot(e.clientX - lastX, e.clientY - lastY);
    if (dFirst <= dLast) {
      window.__irrigationFirstClickX = e.clientX;
      window.__irrigationFirstClickY = e.clientY;
    } else {
      window.__irrigationLastClickX = e.clientX;
      window.__irrigationLastClickY = e.clientY;
    }
  };
  document.addEventListener('keydown', onKey);
  document.addEventListener('click', onClick);
})();
`, p.FirstX, p.FirstY, p.LastX, p.LastY)
}

// pollLearningDecisionScript reads back the operator decision set by the
// armed listener above.
const pollLearningDecisionScript = `window.__irrigationLearningDecision || ''`

// firstClickXScript / firstClickYScript / lastClickXScript /
// lastClickYScript read back the operator's nearest-to-RED and
// nearest-to-BLUE click positions during the decision window. A script
// evaluates to null (rather than a number) until the corresponding
// marker has actually received a click.
const firstClickXScript = `window.__irrigationFirstClickX`
const firstClickYScript = `window.__irrigationFirstClickY`
const lastClickXScript = `window.__irrigationLastClickX`
const lastClickYScript = `window.__irrigationLastClickY`

// overlayScript renders RED (first) and BLUE (last) markers at the
// planned click coordinates (spec §4.4).
func overlayScript(p Plan) string {
	return fmt.Sprintf(`
(() => {
  const mark = (x, y, color) => {
    const d = document.createElement('div');
    d.style.cssText = 'position:fixed;left:' + (x-6) + 'px;top:' + (y-6) + 'px;' +
      'width:12px;height:12px;border-radius:50%%;background:' + color + ';' +
      'z-index:999999;pointer-events:none;';
    d.className = 'irrigation-learning-marker';
    document.body.appendChild(d);
  };
  document.querySelectorAll('.irrigation-learning-marker').forEach(e => e.remove());
  mark(%f, %f, 'red');
  mark(%f, %f, 'blue');
})();
`, p.FirstX, p.FirstY, p.LastX, p.LastY)
}
