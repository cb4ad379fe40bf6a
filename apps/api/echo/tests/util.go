package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	. "github.com/trezcool/alumni/apps/api/echo"
	"github.com/trezcool/alumni/core"
	"github.com/trezcool/alumni/core/dashboard"
	"github.com/trezcool/alumni/core/event"
	"github.com/trezcool/alumni/core/profile"
	"github.com/trezcool/alumni/core/university"
	"github.com/trezcool/alumni/core/user"
	"github.com/trezcool/alumni/services/broker"
	cachesvc "github.com/trezcool/alumni/services/cache"
	emailsvc "github.com/trezcool/alumni/services/email"
	i18nsvc "github.com/trezcool/alumni/services/i18n"
	logsvc "github.com/trezcool/alumni/services/logger"
	"github.com/trezcool/alumni/storage/objects"
	inmemdb "github.com/trezcool/alumni/storage/database/inmem"
)

const pwd = "Passw0rd!x"

type fixture struct {
	app      Server
	conf     *core.Config
	messages *i18nsvc.Translator

	usrRepo     user.Repository
	uniRepo     university.Repository
	profileRepo profile.Repository
	eventRepo   event.Repository

	pages     *cachesvc.MemoryCache
	publisher *broker.MockPublisher
}

func setup(t *testing.T) *fixture {
	conf := core.NewTestConfig()
	logger := logsvc.NewDiscardLogger()

	// set up DB & repos
	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("inmemdb.Open() failed: %v", err)
	}
	f := &fixture{
		conf:        conf,
		messages:    i18nsvc.NewTranslator(conf.DefaultLocale, logger),
		usrRepo:     inmemdb.NewUserRepository(db),
		uniRepo:     inmemdb.NewUniversityRepository(db),
		profileRepo: inmemdb.NewProfileRepository(db),
		eventRepo:   inmemdb.NewEventRepository(db),
		pages:       cachesvc.NewMemoryCache(conf.Redis.PageTTL),
		publisher:   broker.NewMockPublisher(),
	}

	// set up services
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	usrSvc := user.NewServiceMock(f.usrRepo, mailSvc, f.pages, conf, logger)
	profileSvc := profile.NewService(profile.Deps{
		Repo:         f.profileRepo,
		Universities: f.uniRepo,
		Users:        f.usrRepo,
		MailSvc:      mailSvc,
		Objects:      objects.NewMemoryStore("http://objects.test"),
		Publisher:    f.publisher,
		Pages:        f.pages,
		Logger:       logger,
	})
	eventSvc := event.NewService(f.eventRepo, f.publisher, f.pages, logger)

	validate := validator.New()
	translator, _ := ut.New(en.New()).GetTranslator("en")
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	// set up server
	f.app = NewServer(ServerDeps{
		Conf:          conf,
		Logger:        logger,
		Validate:      validate,
		Translator:    translator,
		Messages:      f.messages,
		Pages:         f.pages,
		UserSvc:       usrSvc,
		ProfileSvc:    profileSvc,
		EventSvc:      eventSvc,
		UniversitySvc: university.NewService(f.uniRepo, f.pages, logger),
		DashboardSvc:  dashboard.NewService(profileSvc, eventSvc),
	})
	t.Cleanup(func() { _ = f.app.Close() })
	return f
}

// msg renders a message in the default locale, the way the API does.
func (f *fixture) msg(key string, data ...map[string]interface{}) string {
	var d map[string]interface{}
	if len(data) > 0 {
		d = data[0]
	}
	return f.messages.T("", key, d)
}

func (f *fixture) errBody(t *testing.T, key string, data ...map[string]interface{}) []byte {
	return marchallObj(t, httpErr{Error: f.msg(key, data...)})
}

// fieldsBody is the body of a response to a payload that failed its struct validation.
func (f *fixture) fieldsBody(t *testing.T, fields map[string]string) []byte {
	return marchallObj(t, ErrorResponse{Error: f.msg("request.invalid"), Fields: fields})
}

func (f *fixture) actionBody(t *testing.T, key string) []byte {
	return marchallObj(t, ActionResponse{Success: true, Message: f.msg(key)})
}

func (f *fixture) serve(req *http.Request, rec *httptest.ResponseRecorder) {
	f.app.ServeHTTP(rec, req)
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, conf *core.Config, usr user.User) string {
	token, err := GenerateToken(conf, GetUserClaims(conf, usr))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("json.Unmarshal(%s) failed: %v", rec.Body.String(), err)
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	assert.Equal(t, tt.wantCode, rec.Code, "code")
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, f *fixture, tests []httpTest) {
	for _, tt := range tests {
		if tt.method == "" {
			tt.method = http.MethodGet
		}
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			f.serve(req, rec)
			checkCodeAndData(t, tt, rec)
		})
	}
}
