package payments

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	config "github.com/anjiri1684/peptide_shop/configs"
)

const robokassaMerchantURL = "https://auth.robokassa.ru/Merchant/Index.aspx"

const paymentDescription = "Peptide purchase"

type receiptItem struct {
	Name          string `json:"name"`
	Quantity      int    `json:"quantity"`
	Sum           int64  `json:"sum"`
	PaymentMethod string `json:"payment_method"`
	PaymentObject string `json:"payment_object"`
	Tax           string `json:"tax"`
}

type receipt struct {
	Sno   string        `json:"sno"`
	Items []receiptItem `json:"items"`
}

// Signature joins the parts with ':' and returns the lowercase MD5 hex digest.
func Signature(parts ...string) string {
	sum := md5.Sum([]byte(strings.Join(parts, ":")))
	return hex.EncodeToString(sum[:])
}

// VerifyResultSignature checks a ResultURL callback signature, MD5(OutSum:InvId:Password2).
// The comparison ignores case because the gateway sends uppercase hex.
func VerifyResultSignature(outSum, invID, password2, signature string) bool {
	if signature == "" {
		return false
	}
	expected := Signature(outSum, invID, password2)
	return strings.EqualFold(expected, signature)
}

// Robokassa builds payment links for the merchant account.
type Robokassa struct {
	cfg config.RobokassaConfig
}

func NewRobokassa(cfg config.RobokassaConfig) *Robokassa {
	return &Robokassa{cfg: cfg}
}

// Password2 is the secret used to sign result callbacks.
func (r *Robokassa) Password2() string {
	return r.cfg.Password2
}

// PaymentLink returns the checkout URL for invoice invID of cost rubles.
func (r *Robokassa) PaymentLink(cost int64, invID int64) (string, error) {
	body, err := json.Marshal(receipt{
		Sno: "usn_income_outcome",
		Items: []receiptItem{{
			Name:          paymentDescription,
			Quantity:      1,
			Sum:           cost,
			PaymentMethod: "full_payment",
			PaymentObject: "commodity",
			Tax:           "none",
		}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal receipt: %w", err)
	}

	encodedReceipt := url.QueryEscape(string(body))
	costStr := strconv.FormatInt(cost, 10)
	invStr := strconv.FormatInt(invID, 10)

	isTest := "0"
	if r.cfg.TestMode {
		isTest = "1"
	}

	q := url.Values{}
	q.Set("MerchantLogin", r.cfg.Login)
	q.Set("OutSum", costStr)
	q.Set("InvId", invStr)
	q.Set("Description", paymentDescription)
	q.Set("SignatureValue", Signature(r.cfg.Login, costStr, invStr, encodedReceipt, r.cfg.Password1))
	q.Set("Receipt", encodedReceipt)
	q.Set("IsTest", isTest)

	return robokassaMerchantURL + "?" + q.Encode(), nil
}
