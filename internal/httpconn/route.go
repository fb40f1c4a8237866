package httpconn

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/marmos91/tinyhttpd/internal/logger"
	"golang.org/x/sys/unix"
)

// Accounts backs the login and register actions.
type Accounts interface {
	Verify(user, password string) bool
	Register(ctx context.Context, user, password string) error
}

// Pages the router rewrites targets to.
const (
	PageRegister      = "/register.html"
	PageLogin         = "/log.html"
	PageWelcome       = "/welcome.html"
	PageLoginError    = "/logError.html"
	PageRegisterError = "/registerError.html"
	PagePicture       = "/picture.html"
	PageVideo         = "/video.html"
	PageFans          = "/fans.html"
)

// action is the routing selector: the first character of the last path
// segment.
func action(target string) byte {
	i := strings.LastIndexByte(target, '/')
	if i < 0 || i+1 >= len(target) {
		return 0
	}
	return target[i+1]
}

// route maps a parsed request to the document it should be answered with,
// running the login or register action for POST /2... and POST /3...
func route(ctx context.Context, req *Request, accounts Accounts) string {
	sel := action(req.Target)

	if req.Method == MethodPost && (sel == '2' || sel == '3') {
		form := req.Form()
		user, password := form.Get("user"), form.Get("password")

		if sel == '3' {
			if accounts == nil {
				return PageRegisterError
			}
			if err := accounts.Register(ctx, user, password); err != nil {
				logger.Info("Registration for %q rejected: %v", user, err)
				return PageRegisterError
			}
			return PageLogin
		}

		if accounts != nil && accounts.Verify(user, password) {
			return PageWelcome
		}
		return PageLoginError
	}

	switch sel {
	case '0':
		return PageRegister
	case '1':
		return PageLogin
	case '5':
		return PagePicture
	case '6':
		return PageVideo
	case '7':
		return PageFans
	}
	return req.Target
}

// realPath joins target to root. Cleaning the rooted target first keeps
// ".." segments from escaping root.
func realPath(root, target string) string {
	return filepath.Join(root, filepath.Clean("/"+target))
}

// openFile checks that path is a world-readable regular file and maps it
// read-only. An empty file yields a nil mapping.
func openFile(path string) (Code, []byte) {
	info, err := os.Stat(path)
	if err != nil {
		return CodeNotFound, nil
	}
	if info.Mode().Perm()&0004 == 0 {
		return CodeForbidden, nil
	}
	if info.IsDir() {
		return CodeNotFound, nil
	}
	if info.Size() == 0 {
		return CodeFileReady, nil
	}

	f, err := os.Open(path)
	if err != nil {
		logger.Warn("Failed to open %s: %v", path, err)
		return CodeInternalError, nil
	}
	defer func() { _ = f.Close() }()

	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		logger.Warn("Failed to map %s: %v", path, err)
		return CodeInternalError, nil
	}
	return CodeFileReady, data
}
