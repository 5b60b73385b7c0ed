// Package http exposes the Beach Trivia backend over HTTP.
//
// Staff endpoints authenticate with a bearer token or the `session_token`
// cookie issued by POST /login. Administrator-only routes answer 403 for
// other employees. Errors are JSON bodies of the form
// {"error_code","message","errors"} where errors maps field names to
// validation messages.
//
// Music bingo players never sign in: POST /play/join returns a player id and
// board, POST /play/{game}/{player}/heartbeat keeps the player counted as
// active, and GET /play/{game}/live streams game state over a websocket.
//
// Request/response DTOs live alongside their respective handlers so tests and
// documentation share the same ground truth.
package http
