// vichat is a terminal client for the vichat messaging backend. It keeps one
// authenticated session, one socket connection, and a live view of the open
// conversation.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vichat/client-go/chat"
	"github.com/vichat/client-go/rest"
	"github.com/vichat/client-go/session"
	"github.com/vichat/client-go/ws"
)

var (
	flagAPIBase     = flag.String("api-base", "http://127.0.0.1:3000", "REST API base URL")
	flagWsURL       = flag.String("ws-url", "ws://127.0.0.1:3001/ws", "websocket endpoint")
	flagStateFile   = flag.String("state-file", "vichat.db", "local session state file")
	flagMetricsAddr = flag.String("metrics-addr", "", "prometheus listen address, empty to disable")

	flagLogin    = flag.String("login", "", "log in as this username before starting")
	flagPassword = flag.String("password", "", "password for -login")
	flagRegister = flag.Bool("register", false, "register the -login account first")
)

func main() {
	flag.Parse()

	// NOTE: os.Exit() does not call defers.
	os.Exit(run())
}

func run() int {
	defer glog.Flush()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := session.Open(*flagStateFile)
	if err != nil {
		return errorf("open state file: %v", err)
	}
	defer store.Close()

	api, err := rest.NewClient(*flagAPIBase, store)
	if err != nil {
		return errorf("rest client: %v", err)
	}

	if *flagLogin != "" {
		if *flagRegister {
			if _, err := api.Register(ctx, &rest.RegisterRequest{
				Username: *flagLogin,
				Password: *flagPassword,
			}); err != nil {
				return errorf("register: %v", err)
			}
		}
		resp, err := api.Login(ctx, *flagLogin, *flagPassword)
		if err != nil {
			return errorf("login: %v", err)
		}
		store.SetLogin(resp.AccessToken, resp.RefreshToken, resp.User)
	} else if err := store.CheckAuth(ctx, api); err != nil {
		return errorf("not authenticated, run with -login/-password: %v", err)
	}

	self := store.User()
	glog.Infof("authenticated as %s (uid %d)", self.Username, self.ID)

	if *flagMetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(
				prometheus.DefaultGatherer,
				promhttp.HandlerOpts{},
			))
			if err := http.ListenAndServe(*flagMetricsAddr, mux); err != nil {
				glog.Errorf("metrics server: %v", err)
			}
		}()
	}

	wsClient := ws.NewClient(ws.Conf{URL: *flagWsURL, AutoReconnect: true}, store)
	if err := wsClient.Connect(ctx); err != nil {
		return errorf("socket connect: %v", err)
	}
	defer wsClient.Disconnect()

	sess := chat.NewSession(api, chat.NewWSTransport(wsClient), self, chat.Conf{})
	sess.Start(ctx)
	defer sess.Close()

	watchSignals(cancel)

	fmt.Println("commands: /conv, /users, /search <q>, /open <uid>, /recall <n>, /logout, /quit")
	repl(ctx, sess, api, store)
	return 0
}

func watchSignals(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGUSR1, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		for sig := range sigCh {
			switch sig {
			case syscall.SIGUSR1:
				dumpGoroutines()
			case syscall.SIGTERM, syscall.SIGINT:
				glog.Infof("received signal `%s`, stopping", sig.String())
				cancel()
				os.Exit(0)
			}
		}
	}()
}

func repl(ctx context.Context, sess *chat.Session, api *rest.Client, store *session.Store) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			if err := sess.Send(ctx, line); err != nil {
				fmt.Printf("send failed: %v\n", err)
			}
			continue
		}

		cmd, arg := line, ""
		if i := strings.IndexByte(line, ' '); i > 0 {
			cmd, arg = line[:i], strings.TrimSpace(line[i+1:])
		}

		switch cmd {
		case "/quit":
			return
		case "/logout":
			if err := api.Logout(ctx, store.RefreshToken()); err != nil {
				glog.Errorf("logout: %v", err)
			}
			store.Clear()
			sess.Boot.Reset()
			return
		case "/conv":
			for _, c := range sess.Dir.Conversations() {
				fmt.Printf("%6d  %-20s unread: %d, last: %s\n",
					c.OtherUserID, c.User.Username, c.UnreadCount,
					c.LastMessageTime.Format("15:04:05"))
			}
		case "/users":
			for _, u := range sess.Dir.Users() {
				fmt.Printf("%6d  %s\n", u.ID, u.Username)
			}
		case "/search":
			users, err := sess.Dir.Search(ctx, arg)
			if err != nil {
				fmt.Printf("search failed: %v\n", err)
				continue
			}
			for _, u := range users {
				fmt.Printf("%6d  %s\n", u.ID, u.Username)
			}
		case "/open":
			uid, err := strconv.ParseInt(arg, 10, 64)
			if err != nil {
				fmt.Println("usage: /open <uid>")
				continue
			}
			if err := sess.SelectPeer(ctx, uid); err != nil {
				fmt.Printf("open failed: %v\n", err)
				continue
			}
			printConversation(sess)
		case "/recall":
			n, err := strconv.Atoi(arg)
			msgs := sess.Store.Messages()
			if err != nil || n < 1 || n > len(msgs) {
				fmt.Println("usage: /recall <message number>")
				continue
			}
			if err := sess.Recall(&msgs[n-1]); err != nil {
				fmt.Printf("recall failed: %v\n", err)
			}
		default:
			fmt.Printf("unknown command: %s\n", cmd)
		}
	}
}

func printConversation(sess *chat.Session) {
	self := sess.Self()
	for i, m := range sess.Store.Messages() {
		who := "peer"
		if m.SenderID == self.ID {
			who = "me"
		}
		body := m.DisplayContent()
		if m.IsRecalled {
			body = "(recalled)"
		}
		fmt.Printf("%3d  [%s] %-4s %s\n", i+1, m.CreatedAt.Format("15:04:05"), who, body)
	}
	if typing := sess.Presence.Names(); len(typing) > 0 {
		fmt.Printf("     %s typing...\n", strings.Join(typing, ", "))
	}
}

func errorf(format string, args ...interface{}) int {
	glog.Errorf(format, args...)
	return 1
}
