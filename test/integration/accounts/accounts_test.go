// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lobby Contributors

//go:build integration

package accounts_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"golang.org/x/net/websocket"

	"github.com/holomush/lobby/internal/auth"
	"github.com/holomush/lobby/internal/store"
)

func postJSON(path, body string) *http.Response {
	resp, err := http.Post(env.Server.URL+path, "application/json", strings.NewReader(body))
	Expect(err).NotTo(HaveOccurred())
	return resp
}

func decode(resp *http.Response, v any) {
	defer func() { _ = resp.Body.Close() }()
	Expect(json.NewDecoder(resp.Body).Decode(v)).To(Succeed())
}

func login(email, password string) *http.Response {
	resp, err := http.PostForm(env.Server.URL+"/auth/token", url.Values{
		"username": {email},
		"password": {password},
	})
	Expect(err).NotTo(HaveOccurred())
	return resp
}

func wsURL(room, token string) string {
	return "ws" + strings.TrimPrefix(env.Server.URL, "http") +
		"/ws/game?room=" + url.QueryEscape(room) + "&token=" + url.QueryEscape(token)
}

var _ = Describe("Migrations", func() {
	It("reports the embedded schema as current", func() {
		m, err := store.NewMigrator(env.connStr)
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = m.Close() }()

		version, dirty, err := m.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(1)))
		Expect(dirty).To(BeFalse())

		pending, err := m.Pending()
		Expect(err).NotTo(HaveOccurred())
		Expect(pending).To(BeEmpty())
	})

	It("is a no-op when applied again", func() {
		m, err := store.NewMigrator(env.connStr)
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = m.Close() }()

		Expect(m.Up()).To(Succeed())
	})
})

var _ = Describe("UserRepository", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
		cleanupUsers(ctx, env.pool)
	})

	It("assigns sequential ids and creation times", func() {
		before := time.Now().Add(-time.Second)

		first := &auth.User{Email: "a@example.com", PasswordHash: "hash"}
		Expect(env.Users.Create(ctx, first)).To(Succeed())
		second := &auth.User{Email: "b@example.com", PasswordHash: "hash"}
		Expect(env.Users.Create(ctx, second)).To(Succeed())

		Expect(first.ID).To(Equal(int64(1)))
		Expect(second.ID).To(Equal(int64(2)))
		Expect(first.CreatedAt).To(BeTemporally(">", before))
	})

	It("round-trips by id and by email", func() {
		u := &auth.User{Email: "round@example.com", PasswordHash: "hash"}
		Expect(env.Users.Create(ctx, u)).To(Succeed())

		byID, err := env.Users.GetByID(ctx, u.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(byID.Email).To(Equal("round@example.com"))
		Expect(byID.PasswordHash).To(Equal("hash"))

		byEmail, err := env.Users.GetByEmail(ctx, "round@example.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(byEmail.ID).To(Equal(u.ID))
	})

	It("matches email exactly", func() {
		Expect(env.Users.Create(ctx, &auth.User{Email: "Case@example.com", PasswordHash: "hash"})).To(Succeed())

		_, err := env.Users.GetByEmail(ctx, "case@example.com")
		Expect(err).To(MatchError(auth.ErrNotFound))
	})

	It("returns ErrNotFound for a missing id", func() {
		_, err := env.Users.GetByID(ctx, 404)
		Expect(err).To(MatchError(auth.ErrNotFound))
	})

	It("rejects a duplicate email", func() {
		Expect(env.Users.Create(ctx, &auth.User{Email: "dup@example.com", PasswordHash: "hash"})).To(Succeed())

		err := env.Users.Create(ctx, &auth.User{Email: "dup@example.com", PasswordHash: "other"})
		Expect(err).To(MatchError(auth.ErrEmailTaken))

		count, err := env.Users.Count(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(int64(1)))
	})

	It("admits exactly one of many concurrent registrations", func() {
		const attempts = 8
		var wg sync.WaitGroup
		results := make(chan error, attempts)
		for range attempts {
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer GinkgoRecover()
				_, err := env.Authn.Register(ctx, "race@example.com", "hunter22")
				results <- err
			}()
		}
		wg.Wait()
		close(results)

		succeeded := 0
		for err := range results {
			if err == nil {
				succeeded++
				continue
			}
			Expect(err).To(MatchError(auth.ErrEmailTaken))
		}
		Expect(succeeded).To(Equal(1))
	})
})

var _ = Describe("Account API", func() {
	BeforeEach(func() {
		cleanupUsers(context.Background(), env.pool)
	})

	It("registers, logs in, and identifies the caller", func() {
		resp := postJSON("/users/", `{"email":"alice@example.com","password":"wonderland"}`)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		var created struct {
			ID    int64  `json:"id"`
			Email string `json:"email"`
		}
		decode(resp, &created)
		Expect(created.Email).To(Equal("alice@example.com"))

		resp = login("alice@example.com", "wonderland")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		var tok struct {
			AccessToken string `json:"access_token"`
			TokenType   string `json:"token_type"`
		}
		decode(resp, &tok)
		Expect(tok.TokenType).To(Equal("bearer"))

		req, err := http.NewRequest(http.MethodGet, env.Server.URL+"/auth/me", nil)
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
		resp, err = http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		var me struct {
			ID int64 `json:"id"`
		}
		decode(resp, &me)
		Expect(me.ID).To(Equal(created.ID))
	})

	It("stores an argon2id hash, never the password", func() {
		resp := postJSON("/users/", `{"email":"hash@example.com","password":"wonderland"}`)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		_ = resp.Body.Close()

		u, err := env.Users.GetByEmail(context.Background(), "hash@example.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(u.PasswordHash).To(HavePrefix("$argon2id$"))
		Expect(u.PasswordHash).NotTo(ContainSubstring("wonderland"))
	})

	It("rejects a second registration for the same email", func() {
		resp := postJSON("/users/", `{"email":"bob@example.com","password":"builder"}`)
		_ = resp.Body.Close()

		resp = postJSON("/users/", `{"email":"bob@example.com","password":"builder"}`)
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		var body struct {
			Detail string `json:"detail"`
		}
		decode(resp, &body)
		Expect(body.Detail).To(Equal("Email already registered"))
	})

	It("gives the same answer for an unknown email and a wrong password", func() {
		resp := postJSON("/users/", `{"email":"carol@example.com","password":"correct"}`)
		_ = resp.Body.Close()

		unknown := login("nobody@example.com", "correct")
		wrong := login("carol@example.com", "incorrect")
		Expect(unknown.StatusCode).To(Equal(http.StatusBadRequest))
		Expect(wrong.StatusCode).To(Equal(unknown.StatusCode))

		var a, b struct {
			Detail string `json:"detail"`
		}
		decode(unknown, &a)
		decode(wrong, &b)
		Expect(a).To(Equal(b))
		Expect(a.Detail).To(Equal("Incorrect email or password"))
	})
})

var _ = Describe("Game channel", func() {
	var token string

	BeforeEach(func() {
		ctx := context.Background()
		cleanupUsers(ctx, env.pool)

		_, err := env.Authn.Register(ctx, "player@example.com", "letmein")
		Expect(err).NotTo(HaveOccurred())
		token, err = env.Authn.Login(ctx, "player@example.com", "letmein")
		Expect(err).NotTo(HaveOccurred())
	})

	It("echoes messages for an authenticated player", func() {
		ws, err := websocket.Dial(wsURL("main", token), "", "http://localhost/")
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = ws.Close() }()

		Expect(websocket.Message.Send(ws, "look")).To(Succeed())
		var reply string
		Expect(websocket.Message.Receive(ws, &reply)).To(Succeed())
		Expect(reply).To(Equal("look"))

		Eventually(env.Gate.Count).Should(Equal(1))
		sessions := env.Gate.Sessions()
		Expect(sessions[0].Room).To(Equal("main"))
		Expect(sessions[0].User.Email).To(Equal("player@example.com"))
	})

	It("closes the connection for an invalid token", func() {
		ws, err := websocket.Dial(wsURL("main", "not-a-token"), "", "http://localhost/")
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = ws.Close() }()

		Expect(ws.SetReadDeadline(time.Now().Add(5 * time.Second))).To(Succeed())
		var reply string
		Expect(websocket.Message.Receive(ws, &reply)).NotTo(Succeed())
	})

	It("drops sessions when the player disconnects", func() {
		ws, err := websocket.Dial(wsURL("lobby", token), "", "http://localhost/")
		Expect(err).NotTo(HaveOccurred())
		Expect(websocket.Message.Send(ws, "hi")).To(Succeed())
		var reply string
		Expect(websocket.Message.Receive(ws, &reply)).To(Succeed())

		Expect(ws.Close()).To(Succeed())
		Eventually(env.Gate.Count).Should(BeZero())
	})
})
