package endpoint

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

// GenerateTestPKI 在目录下生成一套测试用证书材料
//
// 生成自签名 CA 与一张由其签发的节点证书（localhost +
// 127.0.0.1/::1，同时允许服务端与客户端认证），写出
// ca.crt / node.crt / node.key 三个 PEM 文件。仅用于测试与
// 示例；生产环境的证书签发是外部协作者的职责。
func GenerateTestPKI(dir string) (caFile, certFile, keyFile string, err error) {
	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", "", "", fmt.Errorf("生成 CA 私钥失败: %w", err)
	}

	caTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{Organization: []string{"Helium"}, CommonName: "Helium Test CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	if err != nil {
		return "", "", "", fmt.Errorf("创建 CA 证书失败: %w", err)
	}
	caCert, err := x509.ParseCertificate(caDER)
	if err != nil {
		return "", "", "", err
	}

	nodeKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", "", "", fmt.Errorf("生成节点私钥失败: %w", err)
	}

	nodeTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano() + 1),
		Subject:      pkix.Name{Organization: []string{"Helium"}, CommonName: "Helium Test Node"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("::1")},
	}
	nodeDER, err := x509.CreateCertificate(rand.Reader, nodeTemplate, caCert, &nodeKey.PublicKey, caKey)
	if err != nil {
		return "", "", "", fmt.Errorf("签发节点证书失败: %w", err)
	}

	keyDER, err := x509.MarshalECPrivateKey(nodeKey)
	if err != nil {
		return "", "", "", err
	}

	caFile = filepath.Join(dir, "ca.crt")
	certFile = filepath.Join(dir, "node.crt")
	keyFile = filepath.Join(dir, "node.key")

	if err := writePEM(caFile, "CERTIFICATE", caDER); err != nil {
		return "", "", "", err
	}
	if err := writePEM(certFile, "CERTIFICATE", nodeDER); err != nil {
		return "", "", "", err
	}
	if err := writePEM(keyFile, "EC PRIVATE KEY", keyDER); err != nil {
		return "", "", "", err
	}
	return caFile, certFile, keyFile, nil
}

// writePEM 将 DER 数据以 PEM 块写入文件
func writePEM(path, blockType string, der []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	return pem.Encode(f, &pem.Block{Type: blockType, Bytes: der})
}
